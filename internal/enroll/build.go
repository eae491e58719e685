package enroll

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/hyperjump/facevault/internal/extractor"
	"github.com/hyperjump/facevault/internal/index"
	"github.com/hyperjump/facevault/internal/itemid"
	"github.com/hyperjump/facevault/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BuildReport summarizes a BuildFromDirectory run.
type BuildReport struct {
	Scanned  int            `json:"scanned"`
	Indexed  int            `json:"indexed"`
	NoFace   int            `json:"no_face"`
	Failed   int            `json:"failed"`
	Tenants  map[string]int `json:"tenants"`
	Snapshot bool           `json:"snapshot_saved"`
}

type buildItem struct {
	path   string
	tenant string
	emb    []float32
	err    error
}

// BuildFromDirectory replaces the index and the record store with the faces
// found under root. Images in root/<tenant>/ belong to that tenant; images
// directly in root belong to the default tenant. Files without a usable face
// or that cannot be read are counted and skipped. Extraction runs on
// Config.Workers goroutines; records keep the walk order.
func (s *Service) BuildFromDirectory(ctx context.Context, root string) (*BuildReport, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absRoot)
	}
	e, err := s.engine()
	if err != nil {
		return nil, err
	}

	items, err := s.scan(absRoot)
	if err != nil {
		return nil, err
	}
	report := &BuildReport{Scanned: len(items), Tenants: make(map[string]int)}
	if s.logger != nil {
		s.logger.Info("building index", zap.String("root", absRoot), zap.Int("files", len(items)))
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range items {
		item := &items[i]
		g.Go(func() error {
			data, err := os.ReadFile(item.path)
			if err != nil {
				item.err = err
				return nil
			}
			item.emb, item.err = s.extractor.Extract(gctx, data, s.cfg.Policy)
			if errors.Is(item.err, context.Canceled) || errors.Is(item.err, context.DeadlineExceeded) {
				return item.err
			}
			if n := done.Add(1); s.logger != nil && n%100 == 0 {
				s.logger.Info("build progress", zap.Int64("processed", n), zap.Int("total", len(items)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	active := make([]index.ActiveRecord, 0, len(items))
	recs := make([]*models.FaceRecord, 0, len(items))
	for _, item := range items {
		if item.err != nil {
			if errors.Is(item.err, extractor.ErrNoFaceDetected) || errors.Is(item.err, extractor.ErrMultipleFacesDetected) {
				report.NoFace++
			} else {
				report.Failed++
			}
			if s.logger != nil {
				s.logger.Debug("skipping image", zap.String("path", item.path), zap.Error(item.err))
			}
			continue
		}
		id := itemid.FromFile(item.tenant, item.path)
		name := filepath.Base(item.path)
		recs = append(recs, &models.FaceRecord{
			ItemID:         id,
			TenantID:       item.tenant,
			DisplayName:    name,
			VectorPosition: len(active),
			Embedding:      item.emb,
			SourcePath:     item.path,
		})
		active = append(active, index.ActiveRecord{
			Embedding:   item.emb,
			TenantID:    item.tenant,
			ItemID:      id,
			DisplayName: name,
		})
		report.Tenants[item.tenant]++
	}

	s.writeMu.Lock()
	if err := e.Rebuild(active); err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("rebuild failed: %w", err)
	}
	err = s.records.ReplaceAll(ctx, recs)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to replace records: %w", err)
	}
	report.Indexed = len(active)
	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, e); err != nil {
			return report, fmt.Errorf("failed to save snapshot: %w", err)
		}
		report.Snapshot = true
	}
	if s.logger != nil {
		s.logger.Info("index built",
			zap.Int("indexed", report.Indexed),
			zap.Int("no_face", report.NoFace),
			zap.Int("failed", report.Failed),
			zap.Int("tenants", len(report.Tenants)))
	}
	return report, nil
}

func (s *Service) scan(root string) ([]buildItem, error) {
	var items []buildItem
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.ExtensionAllowed(path) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		items = append(items, buildItem{path: path, tenant: s.TenantForPath(root, path)})
		return nil
	})
	return items, err
}

// TenantForPath returns the tenant that owns path inside root: the name of the
// first directory below root, or the default tenant for files directly in root.
func (s *Service) TenantForPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return s.cfg.DefaultTenant
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 || parts[0] == ".." {
		return s.cfg.DefaultTenant
	}
	return parts[0]
}
