// Package config provides configuration loading and structs for facevault.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogFile   string          `yaml:"log_file,omitempty"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
	Build     BuildConfig     `yaml:"build"`
}

// StorageConfig holds the record database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// IndexConfig holds engine settings.
type IndexConfig struct {
	Dimensions      int    `yaml:"dimensions"`
	Oversample      int    `yaml:"oversample"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
	StoreType       string `yaml:"store_type"`
}

// SnapshotConfig holds the two snapshot artifact paths and the optional mirror.
type SnapshotConfig struct {
	VectorPath   string       `yaml:"vector_path"`
	MetadataPath string       `yaml:"metadata_path"`
	Compression  string       `yaml:"compression"`
	Mirror       MirrorConfig `yaml:"mirror"`
}

// MirrorConfig holds S3-compatible mirror settings.
type MirrorConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

// ExtractorConfig holds face embedding settings.
type ExtractorConfig struct {
	// Backend is "onnx" or "mock".
	Backend           string `yaml:"backend"`
	ModelPath         string `yaml:"model_path"`
	InputSize         int    `yaml:"input_size"`
	CacheSize         int    `yaml:"cache_size"`
	RequireSingleFace bool   `yaml:"require_single_face"`
}

// SearchConfig holds match defaults.
type SearchConfig struct {
	DefaultLimit        int      `yaml:"default_limit"`
	MaxLimit            int      `yaml:"max_limit"`
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
}

// ThresholdOrDefault returns the configured threshold; 0.75 when unset.
func (s *SearchConfig) ThresholdOrDefault() float32 {
	if s.SimilarityThreshold != nil {
		return float32(*s.SimilarityThreshold)
	}
	return DefaultSimilarityThreshold
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// BuildConfig holds bulk build settings.
type BuildConfig struct {
	Workers       int    `yaml:"workers"`
	DefaultTenant string `yaml:"default_tenant"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Snapshot.VectorPath = expandPath(cfg.Snapshot.VectorPath, configDir)
	cfg.Snapshot.MetadataPath = expandPath(cfg.Snapshot.MetadataPath, configDir)
	cfg.Extractor.ModelPath = expandPath(cfg.Extractor.ModelPath, configDir)
	if cfg.LogFile != "" {
		cfg.LogFile = expandPath(cfg.LogFile, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Index.Dimensions <= 0 {
		return fmt.Errorf("index.dimensions must be positive, got %d", c.Index.Dimensions)
	}
	if t := c.Search.ThresholdOrDefault(); t < -1 || t > 1 {
		return fmt.Errorf("search.similarity_threshold must be in [-1, 1], got %v", t)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) is below search.default_limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	switch c.Snapshot.Compression {
	case "none", "zstd":
	default:
		return fmt.Errorf("snapshot.compression must be none or zstd, got %q", c.Snapshot.Compression)
	}
	switch c.Extractor.Backend {
	case "onnx", "mock":
	default:
		return fmt.Errorf("extractor.backend must be onnx or mock, got %q", c.Extractor.Backend)
	}
	if c.Snapshot.Mirror.Enabled && (c.Snapshot.Mirror.Endpoint == "" || c.Snapshot.Mirror.Bucket == "") {
		return fmt.Errorf("snapshot.mirror requires endpoint and bucket when enabled")
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
