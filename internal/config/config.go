// Package config provides configuration loading and structs for the kioku engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kioku/internal/ranking"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Ranking   ranking.Config  `yaml:"ranking"`
	Eviction  EvictionConfig  `yaml:"eviction"`
	Session   SessionConfig   `yaml:"session"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database path and retention.
type StorageConfig struct {
	DatabasePath  string `yaml:"database_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// EmbeddingConfig holds embedding provider settings. Provider is "onnx" for
// the local model or "mock" for the deterministic test embedder.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	ModelPath      string `yaml:"model_path"`
	Dimensions     int    `yaml:"dimensions"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ChunkingConfig holds passage chunking settings (sizes in characters).
type ChunkingConfig struct {
	MinSourceLen int     `yaml:"min_source_len"`
	TargetSize   int     `yaml:"target_size"`
	MaxSize      int     `yaml:"max_size"`
	Overlap      int     `yaml:"overlap"`
	MinIntent    float64 `yaml:"min_intent"`
}

// EvictionConfig holds the store ceiling and quality score policy.
type EvictionConfig struct {
	MaxEntries            int                `yaml:"max_entries"`
	RecencyDecay          float64            `yaml:"recency_decay"`
	AccessDecay           float64            `yaml:"access_decay"`
	WeightRecency         float64            `yaml:"weight_recency"`
	WeightIntent          float64            `yaml:"weight_intent"`
	WeightAccess          float64            `yaml:"weight_access"`
	WeightCategory        float64            `yaml:"weight_category"`
	CategoryWeights       map[string]float64 `yaml:"category_weights"`
	DefaultCategoryWeight float64            `yaml:"default_category_weight"`
	PruneIntervalMinutes  int                `yaml:"prune_interval_minutes"`
}

// SessionConfig holds session clustering settings.
type SessionConfig struct {
	MaxGapMinutes int     `yaml:"max_gap_minutes"`
	MinCoherence  float64 `yaml:"min_coherence"`
	MinSize       int     `yaml:"min_size"`
	MaxAgeHours   int     `yaml:"max_age_hours"`
	WindowSize    int     `yaml:"window_size"`
}

// WatchConfig holds drop-directory ingestion settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
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

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
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
