package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
debug: true
server:
  port: 9999
storage:
  database_path: /tmp/kioku-test/kioku.db
  retention_days: 7
embedding:
  provider: mock
  dimensions: 128
session:
  min_coherence: 0.7
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug not parsed")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Storage.RetentionDays != 7 {
		t.Errorf("retention = %d, want 7", cfg.Storage.RetentionDays)
	}
	if cfg.Embedding.Provider != "mock" || cfg.Embedding.Dimensions != 128 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Session.MinCoherence != 0.7 {
		t.Errorf("min coherence = %v, want 0.7", cfg.Session.MinCoherence)
	}

	// Unset fields fall back to defaults.
	if cfg.Server.Host != "localhost" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
	if cfg.Chunking.TargetSize != 1000 {
		t.Errorf("chunk target = %d, want default 1000", cfg.Chunking.TargetSize)
	}
	if cfg.Ranking.FreshnessHalfLifeDays != 7 {
		t.Errorf("half-life = %v, want default 7", cfg.Ranking.FreshnessHalfLifeDays)
	}
	if cfg.Eviction.MaxEntries != 500 {
		t.Errorf("max entries = %d, want default 500", cfg.Eviction.MaxEntries)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestLoad_RelativePathsExpand(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: ./data/kioku.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(filepath.Dir(path), "data/kioku.db")
	if cfg.Storage.DatabasePath != want {
		t.Errorf("database path = %q, want %q", cfg.Storage.DatabasePath, want)
	}
}

func TestApplyDefaults_EvictionWeights(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	sum := cfg.Eviction.WeightRecency + cfg.Eviction.WeightIntent +
		cfg.Eviction.WeightAccess + cfg.Eviction.WeightCategory
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("default weight sum = %v, want 1.0", sum)
	}

	// Explicit weights are kept as a set, not mixed with defaults.
	custom := Config{}
	custom.Eviction.WeightRecency = 0.5
	ApplyDefaults(&custom)
	if custom.Eviction.WeightIntent != 0 {
		t.Errorf("partial weights should not be backfilled: %v", custom.Eviction.WeightIntent)
	}
}
