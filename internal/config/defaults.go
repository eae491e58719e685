package config

// DefaultSimilarityThreshold is the match threshold used when none is configured.
const DefaultSimilarityThreshold float32 = 0.75

const dataDir = "/usr/local/var/facevault/data"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = dataDir + "/db/faces.db"
	}
	if cfg.Index.Dimensions == 0 {
		cfg.Index.Dimensions = 512
	}
	if cfg.Index.Oversample == 0 {
		cfg.Index.Oversample = 10
	}
	if cfg.Index.CheckpointEvery == 0 {
		cfg.Index.CheckpointEvery = 100
	}
	if cfg.Index.StoreType == "" {
		cfg.Index.StoreType = "flat"
	}
	if cfg.Snapshot.VectorPath == "" {
		cfg.Snapshot.VectorPath = dataDir + "/index/vectors.fvec"
	}
	if cfg.Snapshot.MetadataPath == "" {
		cfg.Snapshot.MetadataPath = dataDir + "/index/metadata.json"
	}
	if cfg.Snapshot.Compression == "" {
		cfg.Snapshot.Compression = "none"
	}
	if cfg.Snapshot.Mirror.Prefix == "" {
		cfg.Snapshot.Mirror.Prefix = "facevault/"
	}
	if cfg.Extractor.Backend == "" {
		cfg.Extractor.Backend = "onnx"
	}
	if cfg.Extractor.ModelPath == "" {
		cfg.Extractor.ModelPath = dataDir + "/models/arcface.onnx"
	}
	if cfg.Extractor.InputSize == 0 {
		cfg.Extractor.InputSize = 112
	}
	if cfg.Extractor.CacheSize == 0 {
		cfg.Extractor.CacheSize = 1000
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jpg", ".jpeg", ".png", ".webp"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
	if cfg.Build.Workers == 0 {
		cfg.Build.Workers = 4
	}
	if cfg.Build.DefaultTenant == "" {
		cfg.Build.DefaultTenant = "default"
	}
}
