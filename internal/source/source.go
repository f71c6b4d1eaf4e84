// Package source provides batched cursors over record document stores.
package source

import (
	"context"
	"errors"
	"fmt"
)

// Record is one document from the source: column name to scalar value
// (string, number, bool or null). Shapes may vary between records; the
// table layer resolves a fixed column set at ingestion.
type Record map[string]any

// RecordSource is a cursor over a document collection, consumed in bounded
// batches. Each Next call is one blocking fetch of at most limit records;
// callers bound it with a per-batch context deadline so no unbounded-
// lifetime cursor is ever held server-side. Next returns io.EOF once the
// collection is exhausted.
type RecordSource interface {
	Next(ctx context.Context, limit int) ([]Record, error)

	// Ping verifies the source is reachable, so auth and network failures
	// surface before any records are read.
	Ping(ctx context.Context) error

	Close() error
}

// Config selects and parameterizes a record source.
type Config struct {
	Mode      string // "blob"
	BucketURL string // e.g. file:///data/docs, gs://bucket, s3://bucket?region=us-east-1
	Prefix    string
}

var ErrInvalidSourceMode = errors.New("invalid source mode")

// New constructs a record source based on the configured mode.
func New(ctx context.Context, cfg Config) (RecordSource, error) {
	switch cfg.Mode {
	case "blob":
		return NewBlobSource(ctx, cfg.BucketURL, cfg.Prefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceMode, cfg.Mode)
	}
}
