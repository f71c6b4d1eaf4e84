// Package config loads the pipeline configuration from a YAML file with
// environment variable overrides. The loaded Config is an immutable value
// passed into each stage constructor; there are no process-wide settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evolonics/modelprep/internal/logging"
)

type Config struct {
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Source    SourceConfig    `yaml:"source"`
	Schema    SchemaConfig    `yaml:"schema"`
	Split     SplitConfig     `yaml:"split"`
	Drift     DriftConfig     `yaml:"drift"`
	Imputer   ImputerConfig   `yaml:"imputer"`
	Logging   logging.Config  `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ArtifactsConfig selects the artifact store backend and its root.
type ArtifactsConfig struct {
	Backend     string `yaml:"backend"` // "local" | "blob"
	LocalDir    string `yaml:"local_dir"`
	BucketURL   string `yaml:"bucket_url"` // e.g. gs://bucket, s3://bucket?region=us-east-1
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"` // "snappy" | "zstd" | "none"
}

// SourceConfig selects the record source and its batching bounds.
type SourceConfig struct {
	Mode         string        `yaml:"mode"` // "blob"
	BucketURL    string        `yaml:"bucket_url"`
	Prefix       string        `yaml:"prefix"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type SchemaConfig struct {
	Path string `yaml:"path"`
}

type SplitConfig struct {
	TestFraction float64 `yaml:"test_fraction"`
	Seed         int64   `yaml:"seed"`
}

type DriftConfig struct {
	Alpha float64 `yaml:"alpha"`
}

type ImputerConfig struct {
	Strategy  string `yaml:"strategy"` // "knn" | "mean"
	Neighbors int    `yaml:"neighbors"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Artifacts: ArtifactsConfig{
			Backend:     "local",
			LocalDir:    "./artifacts",
			Prefix:      "",
			Compression: "snappy",
		},
		Source: SourceConfig{
			Mode:         "blob",
			BatchSize:    5000,
			BatchTimeout: 30 * time.Second,
		},
		Schema: SchemaConfig{
			Path: "./config/schema.yaml",
		},
		Split: SplitConfig{
			TestFraction: 0.2,
			Seed:         42,
		},
		Drift: DriftConfig{
			Alpha: 0.05,
		},
		Imputer: ImputerConfig{
			Strategy:  "knn",
			Neighbors: 3,
		},
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}

// Load reads the YAML configuration at path, applies environment overrides
// and validates the result. An empty path yields defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Artifacts.LocalDir = getenvDefault("ARTIFACT_DIR", cfg.Artifacts.LocalDir)
	cfg.Artifacts.BucketURL = getenvDefault("ARTIFACT_BUCKET_URL", cfg.Artifacts.BucketURL)
	cfg.Source.BucketURL = getenvDefault("SOURCE_BUCKET_URL", cfg.Source.BucketURL)
	cfg.Source.Prefix = getenvDefault("SOURCE_PREFIX", cfg.Source.Prefix)
	cfg.Schema.Path = getenvDefault("SCHEMA_PATH", cfg.Schema.Path)

	if v := os.Getenv("SOURCE_BATCH_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Source.BatchSize = parsed
		}
	}
	if v := os.Getenv("SPLIT_SEED"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Split.Seed = parsed
		}
	}
}

func (c Config) validate() error {
	if c.Split.TestFraction <= 0 || c.Split.TestFraction >= 1 {
		return fmt.Errorf("split.test_fraction must be in (0, 1), got %v", c.Split.TestFraction)
	}
	if c.Drift.Alpha <= 0 || c.Drift.Alpha >= 1 {
		return fmt.Errorf("drift.alpha must be in (0, 1), got %v", c.Drift.Alpha)
	}
	if c.Source.BatchSize < 1 {
		return fmt.Errorf("source.batch_size must be positive, got %d", c.Source.BatchSize)
	}
	if c.Imputer.Strategy != "knn" && c.Imputer.Strategy != "mean" {
		return fmt.Errorf("imputer.strategy must be %q or %q, got %q", "knn", "mean", c.Imputer.Strategy)
	}
	if c.Imputer.Strategy == "knn" && c.Imputer.Neighbors < 1 {
		return fmt.Errorf("imputer.neighbors must be positive, got %d", c.Imputer.Neighbors)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
