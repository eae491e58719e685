package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/facevault/internal/config"
	"github.com/hyperjump/facevault/internal/enroll"
	"github.com/hyperjump/facevault/internal/extractor"
	"github.com/hyperjump/facevault/internal/index"
	"github.com/hyperjump/facevault/internal/snapshot"
	"github.com/hyperjump/facevault/internal/storage"
	"github.com/hyperjump/facevault/pkg/utils"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Logger    *zap.Logger
	Records   storage.RecordStore
	Extractor extractor.Extractor
	Snapshots *snapshot.Manager
	Engines   *index.Lazy
	Service   *enroll.Service
}

// Close saves the snapshot if the index was loaded, then releases resources.
func (c *Components) Close() {
	if c.Service != nil {
		if err := c.Service.Save(context.Background()); err != nil && c.Logger != nil {
			c.Logger.Warn("snapshot save on exit failed", zap.Error(err))
		}
	}
	if c.Engines != nil {
		_ = c.Engines.Close()
	}
	if c.Extractor != nil {
		_ = c.Extractor.Close()
	}
	if c.Records != nil {
		_ = c.Records.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}

// setup loads config and logger and wires every component.
func setup(flags *globalFlags) (*Components, error) {
	cfg, resolved, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || flags.debug
	logger, err := utils.NewLogger(debugMode, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.Bool("debug", debugMode))

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return c, nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg, Logger: logger}

	records, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Records = records

	ext, err := newExtractor(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Extractor = ext

	snaps, err := newSnapshotManager(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Snapshots = snaps

	engineOpts := []index.EngineOption{
		index.WithLogger(logger),
		index.WithOversample(cfg.Index.Oversample),
		index.WithStoreType(cfg.Index.StoreType),
	}
	c.Engines = index.NewLazy(func() (*index.Engine, error) {
		e, err := snaps.LoadOrEmpty(context.Background(), cfg.Index.Dimensions, engineOpts...)
		if err != nil && errors.Is(err, snapshot.ErrCorrupt) && e != nil {
			// Corrupt snapshots are logged by the manager; keep serving from empty.
			return e, nil
		}
		return e, err
	})

	c.Service = enroll.NewService(c.Engines, ext, records, snaps,
		enroll.WithLogger(logger),
		enroll.WithConfig(enroll.Config{
			CheckpointEvery:  cfg.Index.CheckpointEvery,
			DefaultLimit:     cfg.Search.DefaultLimit,
			MaxLimit:         cfg.Search.MaxLimit,
			DefaultThreshold: cfg.Search.ThresholdOrDefault(),
			Policy:           extractor.Policy{RequireSingleFace: cfg.Extractor.RequireSingleFace},
			DefaultTenant:    cfg.Build.DefaultTenant,
			Workers:          cfg.Build.Workers,
			Extensions:       cfg.Watch.Extensions,
			UsagePaths:       []string{cfg.Storage.DatabasePath, cfg.Snapshot.VectorPath, cfg.Snapshot.MetadataPath},
		}),
	)
	return c, nil
}

func newExtractor(cfg *config.Config) (extractor.Extractor, error) {
	var ext extractor.Extractor
	switch cfg.Extractor.Backend {
	case "mock":
		ext = extractor.NewMockExtractor(cfg.Index.Dimensions)
	default:
		onnx, err := extractor.NewONNXExtractor(cfg.Extractor.ModelPath, extractor.ONNXOptions{
			Dimensions: cfg.Index.Dimensions,
			InputSize:  cfg.Extractor.InputSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize extractor: %w", err)
		}
		ext = onnx
	}
	if ext.Dimensions() != cfg.Index.Dimensions {
		_ = ext.Close()
		return nil, fmt.Errorf("extractor produces %d dimensions, index.dimensions is %d", ext.Dimensions(), cfg.Index.Dimensions)
	}
	if cfg.Extractor.CacheSize > 0 {
		return extractor.NewCached(ext, cfg.Extractor.CacheSize), nil
	}
	return ext, nil
}

func newSnapshotManager(cfg *config.Config, logger *zap.Logger) (*snapshot.Manager, error) {
	compression, err := snapshot.ParseCompression(cfg.Snapshot.Compression)
	if err != nil {
		return nil, err
	}
	opts := []snapshot.ManagerOption{
		snapshot.WithLogger(logger),
		snapshot.WithCompression(compression),
	}
	if m := cfg.Snapshot.Mirror; m.Enabled {
		mirror, err := snapshot.NewMinioMirror(snapshot.MinioConfig{
			Endpoint:  m.Endpoint,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			UseSSL:    m.UseSSL,
			Region:    m.Region,
		})
		if err != nil {
			return nil, err
		}
		if err := mirror.EnsureBucket(context.Background()); err != nil {
			logger.Warn("snapshot mirror bucket check failed", zap.Error(err))
		}
		opts = append(opts, snapshot.WithMirror(mirror))
	}
	return snapshot.NewManager(cfg.Snapshot.VectorPath, cfg.Snapshot.MetadataPath, opts...), nil
}
