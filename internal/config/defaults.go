package config

// ApplyDefaults sets default values for any zero values in cfg. Ranking
// defaults are filled by the ranking package itself.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kioku/data/kioku.db"
	}
	if cfg.Storage.RetentionDays == 0 {
		cfg.Storage.RetentionDays = 30
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kioku/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 10
	}
	if cfg.Chunking.MinSourceLen == 0 {
		cfg.Chunking.MinSourceLen = 1500
	}
	if cfg.Chunking.TargetSize == 0 {
		cfg.Chunking.TargetSize = 1000
	}
	if cfg.Chunking.MaxSize == 0 {
		cfg.Chunking.MaxSize = 1600
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 200
	}
	if cfg.Chunking.MinIntent == 0 {
		cfg.Chunking.MinIntent = 0.5
	}
	cfg.Ranking.ApplyDefaults()
	if cfg.Eviction.MaxEntries == 0 {
		cfg.Eviction.MaxEntries = 500
	}
	if cfg.Eviction.RecencyDecay == 0 {
		cfg.Eviction.RecencyDecay = 0.05
	}
	if cfg.Eviction.AccessDecay == 0 {
		cfg.Eviction.AccessDecay = 0.15
	}
	if cfg.Eviction.WeightRecency == 0 && cfg.Eviction.WeightIntent == 0 &&
		cfg.Eviction.WeightAccess == 0 && cfg.Eviction.WeightCategory == 0 {
		cfg.Eviction.WeightRecency = 0.3
		cfg.Eviction.WeightIntent = 0.3
		cfg.Eviction.WeightAccess = 0.3
		cfg.Eviction.WeightCategory = 0.1
	}
	if cfg.Eviction.DefaultCategoryWeight == 0 {
		cfg.Eviction.DefaultCategoryWeight = 0.5
	}
	if cfg.Eviction.PruneIntervalMinutes == 0 {
		cfg.Eviction.PruneIntervalMinutes = 15
	}
	if cfg.Session.MaxGapMinutes == 0 {
		cfg.Session.MaxGapMinutes = 30
	}
	if cfg.Session.MinCoherence == 0 {
		cfg.Session.MinCoherence = 0.6
	}
	if cfg.Session.MinSize == 0 {
		cfg.Session.MinSize = 2
	}
	if cfg.Session.MaxAgeHours == 0 {
		cfg.Session.MaxAgeHours = 12
	}
	if cfg.Session.WindowSize == 0 {
		cfg.Session.WindowSize = 50
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md"}
	}
}
