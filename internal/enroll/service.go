// Package enroll sequences face extraction, the index engine, the durable
// record store and snapshot checkpoints.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/facevault/internal/extractor"
	"github.com/hyperjump/facevault/internal/index"
	"github.com/hyperjump/facevault/internal/itemid"
	"github.com/hyperjump/facevault/internal/models"
	"github.com/hyperjump/facevault/internal/snapshot"
	"github.com/hyperjump/facevault/internal/storage"
	"go.uber.org/zap"
)

// Config holds the tunables of a Service.
type Config struct {
	CheckpointEvery  int
	DefaultLimit     int
	MaxLimit         int
	DefaultThreshold float32
	Policy           extractor.Policy
	DefaultTenant    string
	Workers          int
	Extensions       []string
	// UsagePaths are summed by Status for disk usage.
	UsagePaths []string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		CheckpointEvery:  100,
		DefaultLimit:     10,
		MaxLimit:         100,
		DefaultThreshold: 0.75,
		DefaultTenant:    index.DefaultTenant,
		Workers:          4,
		Extensions:       []string{".jpg", ".jpeg", ".png", ".webp"},
	}
}

// Service enrolls and matches faces.
type Service struct {
	engines   *index.Lazy
	extractor extractor.Extractor
	records   storage.RecordStore
	snapshots *snapshot.Manager
	cfg       Config
	logger    *zap.Logger

	// writeMu serializes changes that touch both the engine and the record
	// store, so record positions always agree with engine positions.
	writeMu sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets a logger for debug output (face enrolled, checkpoint saved, etc.).
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithConfig overrides the default configuration. Zero fields keep their defaults.
func WithConfig(cfg Config) ServiceOption {
	return func(s *Service) {
		def := s.cfg
		s.cfg = cfg
		if s.cfg.CheckpointEvery <= 0 {
			s.cfg.CheckpointEvery = def.CheckpointEvery
		}
		if s.cfg.DefaultLimit <= 0 {
			s.cfg.DefaultLimit = def.DefaultLimit
		}
		if s.cfg.MaxLimit <= 0 {
			s.cfg.MaxLimit = def.MaxLimit
		}
		if s.cfg.DefaultTenant == "" {
			s.cfg.DefaultTenant = def.DefaultTenant
		}
		if s.cfg.Workers <= 0 {
			s.cfg.Workers = def.Workers
		}
		if len(s.cfg.Extensions) == 0 {
			s.cfg.Extensions = def.Extensions
		}
	}
}

// NewService creates a service. The engine is taken from engines on first use;
// snapshots may be nil to disable checkpoints.
func NewService(
	engines *index.Lazy,
	ext extractor.Extractor,
	records storage.RecordStore,
	snapshots *snapshot.Manager,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		engines:   engines,
		extractor: ext,
		records:   records,
		snapshots: snapshots,
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) engine() (*index.Engine, error) {
	e, err := s.engines.Get()
	if err != nil {
		return nil, fmt.Errorf("index unavailable: %w", err)
	}
	return e, nil
}

// Enroll extracts the face in input.Image, adds it to the index and writes its
// durable record. A record write failure after indexing returns an *OrphanError.
// Every CheckpointEvery vectors the snapshot is saved; a failed checkpoint is
// logged and does not fail the enrollment.
func (s *Service) Enroll(ctx context.Context, input *models.EnrollInput) (*models.Enrollment, error) {
	emb, err := s.extractor.Extract(ctx, input.Image, s.cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to extract face: %w", err)
	}
	e, err := s.engine()
	if err != nil {
		return nil, err
	}

	tenant := input.TenantID
	if tenant == "" {
		tenant = s.cfg.DefaultTenant
	}
	itemID := input.ItemID
	if itemID == "" {
		itemID = itemid.New()
	}

	s.writeMu.Lock()
	pos, err := e.AddVector(emb, tenant, itemID, input.DisplayName)
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("failed to index face: %w", err)
	}

	rec := &models.FaceRecord{
		ItemID:         itemID,
		TenantID:       tenant,
		DisplayName:    input.DisplayName,
		VectorPosition: pos,
		Embedding:      emb,
		SourcePath:     input.SourcePath,
	}
	err = s.records.CreateRecord(ctx, rec)
	s.writeMu.Unlock()
	if err != nil {
		if s.logger != nil {
			s.logger.Error("orphaned vector",
				zap.Int("position", pos),
				zap.String("item", itemID),
				zap.String("tenant", tenant),
				zap.Error(err))
		}
		return nil, &OrphanError{Position: pos, ItemID: itemID, TenantID: tenant, Err: err}
	}

	enrollment := &models.Enrollment{
		ItemID:      itemID,
		TenantID:    tenant,
		DisplayName: input.DisplayName,
		Position:    pos,
	}
	if s.snapshots != nil && e.VectorCount()%s.cfg.CheckpointEvery == 0 {
		enrollment.Checkpoint = true
		if err := s.snapshots.Save(ctx, e); err != nil && s.logger != nil {
			s.logger.Warn("checkpoint save failed", zap.Error(err))
		}
	}
	if s.logger != nil {
		s.logger.Debug("face enrolled",
			zap.String("item", itemID),
			zap.String("tenant", tenant),
			zap.Int("position", pos))
	}
	return enrollment, nil
}

// EnrollFile enrolls the image at path for tenantID. The item id is derived
// from the tenant and path; a file that already has a record returns
// ErrAlreadyEnrolled without touching the index.
func (s *Service) EnrollFile(ctx context.Context, tenantID, path string) (*models.Enrollment, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !s.ExtensionAllowed(absPath) {
		return nil, fmt.Errorf("extension %q not in allowed list", filepath.Ext(absPath))
	}
	if tenantID == "" {
		tenantID = s.cfg.DefaultTenant
	}
	id := itemid.FromFile(tenantID, absPath)
	_, err = s.records.GetRecord(ctx, id)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyEnrolled, absPath)
	case !errors.Is(err, storage.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to look up record: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return s.Enroll(ctx, &models.EnrollInput{
		TenantID:    tenantID,
		ItemID:      id,
		DisplayName: filepath.Base(absPath),
		SourcePath:  absPath,
		Image:       data,
	})
}

// Match extracts the face in q.Image and searches the index.
func (s *Service) Match(ctx context.Context, q *models.MatchQuery) (*models.MatchResponse, error) {
	start := time.Now()
	if err := q.Validate(s.cfg.DefaultLimit, s.cfg.MaxLimit, s.cfg.DefaultThreshold); err != nil {
		return nil, err
	}
	emb, err := s.extractor.Extract(ctx, q.Image, s.cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to extract face: %w", err)
	}
	e, err := s.engine()
	if err != nil {
		return nil, err
	}
	matches, err := e.Search(emb, q.Limit, q.TenantID, *q.Threshold)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	resp := &models.MatchResponse{
		TenantID:  q.TenantID,
		Limit:     q.Limit,
		Threshold: *q.Threshold,
		Matches:   matches,
		Total:     len(matches),
		Took:      time.Since(start),
	}
	if s.logger != nil {
		s.logger.Debug("match",
			zap.String("tenant", q.TenantID),
			zap.Int("results", resp.Total),
			zap.Duration("took", resp.Took))
	}
	return resp, nil
}

// PurgeResult reports what PurgeTenant removed.
type PurgeResult struct {
	TenantID       string `json:"tenant_id"`
	VectorsMarked  int    `json:"vectors_marked"`
	RecordsDeleted int64  `json:"records_deleted"`
}

// PurgeTenant soft-deletes the tenant's vectors and deletes its records.
// The vectors stay in the store until the next Reconcile.
func (s *Service) PurgeTenant(ctx context.Context, tenantID string) (*PurgeResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant cannot be empty")
	}
	e, err := s.engine()
	if err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	marked := e.SoftDeleteTenant(tenantID)
	deleted, err := s.records.DeleteByTenant(ctx, tenantID)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to delete records: %w", err)
	}
	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, e); err != nil && s.logger != nil {
			s.logger.Warn("snapshot save after purge failed", zap.Error(err))
		}
	}
	if s.logger != nil {
		s.logger.Info("tenant purged",
			zap.String("tenant", tenantID),
			zap.Int("vectors_marked", marked),
			zap.Int64("records_deleted", deleted))
	}
	return &PurgeResult{TenantID: tenantID, VectorsMarked: marked, RecordsDeleted: deleted}, nil
}

// ReconcileResult reports the effect of Reconcile.
type ReconcileResult struct {
	VectorsBefore int `json:"vectors_before"`
	VectorsAfter  int `json:"vectors_after"`
	Skipped       int `json:"skipped"`
}

// Reconcile rebuilds the index from the record store, dropping soft-deleted
// and orphaned vectors, writes the new positions back and saves the snapshot.
// Records whose embedding has the wrong dimension are skipped.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	e, err := s.engine()
	if err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	recs, err := s.records.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	result := &ReconcileResult{VectorsBefore: e.VectorCount()}
	active := make([]index.ActiveRecord, 0, len(recs))
	positions := make(map[string]int, len(recs))
	for _, rec := range recs {
		if len(rec.Embedding) != e.Dimensions() {
			result.Skipped++
			if s.logger != nil {
				s.logger.Warn("skipping record with bad embedding",
					zap.String("item", rec.ItemID), zap.Int("dimensions", len(rec.Embedding)))
			}
			continue
		}
		positions[rec.ItemID] = len(active)
		active = append(active, index.ActiveRecord{
			Embedding:   rec.Embedding,
			TenantID:    rec.TenantID,
			ItemID:      rec.ItemID,
			DisplayName: rec.DisplayName,
		})
	}

	if err := e.Rebuild(active); err != nil {
		return nil, fmt.Errorf("rebuild failed: %w", err)
	}
	result.VectorsAfter = e.VectorCount()
	if err := s.records.UpdatePositions(ctx, positions); err != nil {
		return nil, fmt.Errorf("failed to update positions: %w", err)
	}
	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, e); err != nil {
			return nil, fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	if s.logger != nil {
		s.logger.Info("index reconciled",
			zap.Int("before", result.VectorsBefore),
			zap.Int("after", result.VectorsAfter),
			zap.Int("skipped", result.Skipped))
	}
	return result, nil
}

// Save writes a snapshot if the engine has been loaded and changed since it
// was loaded or last saved.
func (s *Service) Save(ctx context.Context) error {
	if s.snapshots == nil || !s.engines.Loaded() {
		return nil
	}
	e, err := s.engine()
	if err != nil {
		return err
	}
	if !e.Modified() {
		return nil
	}
	return s.snapshots.Save(ctx, e)
}

// ExtensionAllowed reports whether path has one of the configured image extensions.
func (s *Service) ExtensionAllowed(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, a := range s.cfg.Extensions {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}
