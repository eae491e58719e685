// Package snapshot persists the index engine as a pair of files: a binary
// vector blob and a JSON metadata document.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperjump/facevault/internal/index"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned by Load when no snapshot exists.
	ErrNotFound = errors.New("snapshot not found")
	// ErrCorrupt is returned by Load when a snapshot exists but cannot be used.
	ErrCorrupt = errors.New("snapshot corrupt")
)

// Manager saves and loads engine snapshots.
type Manager struct {
	vectorPath   string
	metadataPath string
	compression  Compression
	mirror       Mirror
	logger       *zap.Logger

	mu sync.Mutex
	// corrupt is set when LoadOrEmpty fell back to an empty engine; the
	// unusable pair is set aside before the next save overwrites it.
	corrupt bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger for the manager.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithCompression sets the vector payload compression used by Save.
func WithCompression(c Compression) ManagerOption {
	return func(m *Manager) {
		m.compression = c
	}
}

// WithMirror uploads every saved snapshot to mirror and fetches from it
// when no local snapshot exists.
func WithMirror(mirror Mirror) ManagerOption {
	return func(m *Manager) {
		m.mirror = mirror
	}
}

// NewManager creates a manager for the given vector blob and metadata paths.
func NewManager(vectorPath, metadataPath string, opts ...ManagerOption) *Manager {
	m := &Manager{
		vectorPath:   vectorPath,
		metadataPath: metadataPath,
		compression:  CompressionNone,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Paths returns the vector blob and metadata paths.
func (m *Manager) Paths() (string, string) {
	return m.vectorPath, m.metadataPath
}

// Save writes the engine state under the engine's write lock. Each file is
// written to a temporary file and renamed into place. If the last load found
// the pair corrupt, the old files are first renamed to <path>.corrupt-<ts>.
// Mirror upload failures are logged and do not fail the save.
func (m *Manager) Save(ctx context.Context, e *index.Engine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	var count int
	err := e.Persist(func(s index.State) error {
		blob, hdr, err := encodeVectors(s.Dimensions, s.Vectors, m.compression)
		if err != nil {
			return err
		}
		meta, err := encodeMetadata(hdr, s.Records)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		if m.corrupt {
			if err := m.setAside(start); err != nil {
				return fmt.Errorf("failed to set aside corrupt snapshot: %w", err)
			}
			m.corrupt = false
		}
		if err := writeFileAtomic(m.vectorPath, blob); err != nil {
			return fmt.Errorf("failed to write vector blob: %w", err)
		}
		if err := writeFileAtomic(m.metadataPath, meta); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
		count = hdr.Count
		return nil
	})
	if err != nil {
		return err
	}
	if m.logger != nil {
		m.logger.Info("snapshot saved",
			zap.String("path", m.vectorPath),
			zap.Int("vectors", count),
			zap.Duration("took", time.Since(start)))
	}

	if m.mirror != nil {
		if err := m.push(ctx); err != nil && m.logger != nil {
			m.logger.Warn("snapshot mirror upload failed", zap.Error(err))
		}
	}
	return nil
}

// Load reads the snapshot pair. It returns ErrNotFound when neither file
// exists and an error wrapping ErrCorrupt when the pair is unreadable or
// inconsistent. Files on disk are never modified.
func (m *Manager) Load(ctx context.Context) (*index.State, error) {
	if !exists(m.vectorPath) && !exists(m.metadataPath) && m.mirror != nil {
		if err := m.pull(ctx); err != nil && !errors.Is(err, ErrNotFound) {
			if m.logger != nil {
				m.logger.Warn("snapshot mirror fetch failed", zap.Error(err))
			}
		}
	}

	blob, blobErr := os.ReadFile(m.vectorPath)
	meta, metaErr := os.ReadFile(m.metadataPath)
	if os.IsNotExist(blobErr) && os.IsNotExist(metaErr) {
		return nil, ErrNotFound
	}
	if blobErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, blobErr)
	}
	if metaErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, metaErr)
	}

	vectors, hdr, err := decodeVectors(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	doc, err := decodeMetadata(meta, hdr.Count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Count != hdr.Count {
		return nil, fmt.Errorf("%w: metadata has %d records, vector blob has %d", ErrCorrupt, doc.Count, hdr.Count)
	}
	if doc.Version == metadataVersion {
		if doc.Dimensions != hdr.Dimensions {
			return nil, fmt.Errorf("%w: metadata dimension %d, vector blob dimension %d", ErrCorrupt, doc.Dimensions, hdr.Dimensions)
		}
		if doc.VectorChecksum != hdr.Checksum {
			return nil, fmt.Errorf("%w: metadata and vector blob are from different saves", ErrCorrupt)
		}
	}

	state := &index.State{Dimensions: hdr.Dimensions, Vectors: vectors, Records: doc.Records}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if m.logger != nil {
		m.logger.Info("snapshot loaded",
			zap.String("path", m.vectorPath),
			zap.Int("vectors", hdr.Count),
			zap.Int("tenants", len(tenantsOf(doc.Records))),
			zap.Int("metadata_version", doc.Version))
	}
	return state, nil
}

// LoadOrEmpty builds an engine from the snapshot, or an empty engine when
// there is none. When the snapshot is corrupt the returned engine is empty
// and usable, and the error wraps ErrCorrupt. Any other error means no
// engine could be built.
func (m *Manager) LoadOrEmpty(ctx context.Context, dimensions int, opts ...index.EngineOption) (*index.Engine, error) {
	state, err := m.Load(ctx)
	switch {
	case err == nil:
		if state.Dimensions != dimensions {
			err = fmt.Errorf("%w: snapshot dimension %d, configured %d", ErrCorrupt, state.Dimensions, dimensions)
			break
		}
		e, buildErr := index.NewEngineFromState(*state, opts...)
		if buildErr == nil {
			return e, nil
		}
		err = fmt.Errorf("%w: %v", ErrCorrupt, buildErr)
	case errors.Is(err, ErrNotFound):
		return index.NewEngine(dimensions, opts...)
	}

	m.mu.Lock()
	m.corrupt = true
	m.mu.Unlock()
	if m.logger != nil {
		m.logger.Error("snapshot unusable, starting with an empty index",
			zap.String("path", m.vectorPath), zap.Error(err))
	}
	e, buildErr := index.NewEngine(dimensions, opts...)
	if buildErr != nil {
		return nil, buildErr
	}
	return e, err
}

func (m *Manager) setAside(now time.Time) error {
	suffix := ".corrupt-" + now.UTC().Format("20060102T150405Z")
	for _, p := range []string{m.vectorPath, m.metadataPath} {
		if !exists(p) {
			continue
		}
		if err := os.Rename(p, p+suffix); err != nil {
			return err
		}
		if m.logger != nil {
			m.logger.Warn("corrupt snapshot file set aside", zap.String("path", p+suffix))
		}
	}
	return nil
}

func (m *Manager) push(ctx context.Context) error {
	for _, p := range []string{m.vectorPath, m.metadataPath} {
		if err := m.mirror.Upload(ctx, filepath.Base(p), p); err != nil {
			return err
		}
	}
	if m.logger != nil {
		m.logger.Debug("snapshot mirrored")
	}
	return nil
}

func (m *Manager) pull(ctx context.Context) error {
	paths := []string{m.vectorPath, m.metadataPath}
	for _, p := range paths {
		if err := m.mirror.Download(ctx, filepath.Base(p), p); err != nil {
			// A half-fetched pair would read as corrupt; leave nothing behind.
			for _, q := range paths {
				os.Remove(q)
			}
			return err
		}
	}
	if m.logger != nil {
		m.logger.Info("snapshot fetched from mirror", zap.String("path", m.vectorPath))
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
