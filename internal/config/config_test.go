package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
index:
  dimensions: 128
  oversample: 5
storage:
  database_path: "test.db"
snapshot:
  compression: zstd
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Index.Dimensions != 128 || cfg.Index.Oversample != 5 {
		t.Errorf("unexpected index config: %+v", cfg.Index)
	}
	if cfg.Index.CheckpointEvery != 100 {
		t.Errorf("checkpoint_every = %d, want default 100", cfg.Index.CheckpointEvery)
	}
	if cfg.Snapshot.Compression != "zstd" {
		t.Errorf("compression = %q", cfg.Snapshot.Compression)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, `
debug: true
storage:
  database_path: "test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/faces.db"
snapshot:
  vector_path: "./data/index/vectors.fvec"
  metadata_path: "./data/index/metadata.json"
watch:
  directories: ["./uploads"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "db", "faces.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "data", "index", "vectors.fvec"); cfg.Snapshot.VectorPath != want {
		t.Errorf("vector_path = %s, want %s", cfg.Snapshot.VectorPath, want)
	}
	if want := filepath.Join(dir, "data", "index", "metadata.json"); cfg.Snapshot.MetadataPath != want {
		t.Errorf("metadata_path = %s, want %s", cfg.Snapshot.MetadataPath, want)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	if want := filepath.Join(dir, "uploads"); cfg.Watch.Directories[0] != want {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], want)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"negative dimensions", "index:\n  dimensions: -1\n", "index.dimensions"},
		{"threshold out of range", "search:\n  similarity_threshold: 1.5\n", "similarity_threshold"},
		{"bad compression", "snapshot:\n  compression: lz4\n", "snapshot.compression"},
		{"bad backend", "extractor:\n  backend: tflite\n", "extractor.backend"},
		{"max below default", "search:\n  default_limit: 50\n  max_limit: 20\n", "max_limit"},
		{"mirror without bucket", "snapshot:\n  mirror:\n    enabled: true\n    endpoint: localhost:9000\n", "mirror"},
		{"not yaml", "index: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Index.Dimensions != 512 {
		t.Errorf("default dimensions: got %d", cfg.Index.Dimensions)
	}
	if cfg.Index.Oversample != 10 {
		t.Errorf("default oversample: got %d", cfg.Index.Oversample)
	}
	if cfg.Extractor.InputSize != 112 || cfg.Extractor.Backend != "onnx" {
		t.Errorf("extractor defaults: got %+v", cfg.Extractor)
	}
	if cfg.Search.DefaultLimit != 10 || cfg.Search.MaxLimit != 100 {
		t.Errorf("search limits: got %d/%d", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	if cfg.Search.ThresholdOrDefault() != 0.75 {
		t.Errorf("default threshold: got %v", cfg.Search.ThresholdOrDefault())
	}
	if cfg.Build.Workers != 4 || cfg.Build.DefaultTenant != "default" {
		t.Errorf("build defaults: got %+v", cfg.Build)
	}
	if len(cfg.Watch.Extensions) != 4 || cfg.Watch.Extensions[0] != ".jpg" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if cfg.Snapshot.Compression != "none" {
		t.Errorf("compression: got %q", cfg.Snapshot.Compression)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSearchConfig_ThresholdZeroIsKept(t *testing.T) {
	zero := 0.0
	s := SearchConfig{SimilarityThreshold: &zero}
	if got := s.ThresholdOrDefault(); got != 0 {
		t.Errorf("ThresholdOrDefault() = %v, want 0", got)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/uploads"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Index:   IndexConfig{Dimensions: 64},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		Watch:   WatchConfig{Directories: []string{"/tmp/uploads"}},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Index.Dimensions != 64 {
		t.Errorf("loaded dimensions: got %d", loaded.Index.Dimensions)
	}
	if len(loaded.Watch.Directories) != 1 || loaded.Watch.Directories[0] != "/tmp/uploads" {
		t.Errorf("loaded watch directories: got %v", loaded.Watch.Directories)
	}
}
