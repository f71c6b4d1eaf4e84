package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Source.BatchSize != 5000 {
		t.Errorf("BatchSize = %d, want 5000", cfg.Source.BatchSize)
	}
	if cfg.Split.Seed != 42 || cfg.Split.TestFraction != 0.2 {
		t.Errorf("split = %+v", cfg.Split)
	}
	if cfg.Imputer.Strategy != "knn" || cfg.Imputer.Neighbors != 3 {
		t.Errorf("imputer = %+v", cfg.Imputer)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	doc := `
artifacts:
  backend: local
  local_dir: /data/artifacts
  compression: zstd
source:
  mode: blob
  bucket_url: gs://records
  batch_size: 1000
  batch_timeout: 10s
split:
  test_fraction: 0.3
  seed: 7
drift:
  alpha: 0.01
imputer:
  strategy: mean
logging:
  format: json
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Artifacts.LocalDir != "/data/artifacts" || cfg.Artifacts.Compression != "zstd" {
		t.Errorf("artifacts = %+v", cfg.Artifacts)
	}
	if cfg.Source.BucketURL != "gs://records" || cfg.Source.BatchSize != 1000 {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Source.BatchTimeout != 10*time.Second {
		t.Errorf("BatchTimeout = %v", cfg.Source.BatchTimeout)
	}
	if cfg.Split.TestFraction != 0.3 || cfg.Split.Seed != 7 {
		t.Errorf("split = %+v", cfg.Split)
	}
	if cfg.Imputer.Strategy != "mean" {
		t.Errorf("imputer = %+v", cfg.Imputer)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	// untouched sections keep their defaults
	if cfg.Metrics.Address != ":9090" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARTIFACT_DIR", "/mnt/artifacts")
	t.Setenv("SOURCE_BUCKET_URL", "s3://docs")
	t.Setenv("SOURCE_BATCH_SIZE", "250")
	t.Setenv("SPLIT_SEED", "99")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Artifacts.LocalDir != "/mnt/artifacts" {
		t.Errorf("LocalDir = %q", cfg.Artifacts.LocalDir)
	}
	if cfg.Source.BucketURL != "s3://docs" {
		t.Errorf("BucketURL = %q", cfg.Source.BucketURL)
	}
	if cfg.Source.BatchSize != 250 {
		t.Errorf("BatchSize = %d", cfg.Source.BatchSize)
	}
	if cfg.Split.Seed != 99 {
		t.Errorf("Seed = %d", cfg.Split.Seed)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fraction too low", func(c *Config) { c.Split.TestFraction = 0 }},
		{"fraction too high", func(c *Config) { c.Split.TestFraction = 1 }},
		{"alpha out of range", func(c *Config) { c.Drift.Alpha = 1.5 }},
		{"zero batch size", func(c *Config) { c.Source.BatchSize = 0 }},
		{"unknown strategy", func(c *Config) { c.Imputer.Strategy = "median" }},
		{"zero neighbors", func(c *Config) { c.Imputer.Neighbors = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
