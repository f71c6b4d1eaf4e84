// Package storage abstracts the artifact directory tree. Keys are
// slash-separated paths produced by the layout package; each stage writes
// its own keys exactly once and never mutates another stage's files.
package storage

import (
	"context"
	"fmt"
)

// Store reads and writes artifact payloads by key.
type Store interface {
	// Write stores data at key, creating parent directories as needed.
	// Writes are atomic per key (temp + rename, or single object put).
	Write(ctx context.Context, key string, data []byte) error

	// Read returns the payload at key.
	Read(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// URI returns the canonical URI for key.
	// Local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path.
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// Config selects the artifact store backend.
type Config struct {
	Backend   string // "local" | "blob"
	LocalDir  string
	BucketURL string
	Prefix    string
}

// New creates a storage backend based on configuration.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("local_dir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "blob":
		if cfg.BucketURL == "" {
			return nil, fmt.Errorf("bucket_url required for blob backend")
		}
		return NewBlobStore(ctx, cfg.BucketURL, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
