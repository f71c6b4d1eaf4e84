package source

import (
	"context"
	"io"
)

// MemorySource serves a fixed record slice. Used in tests and for embedding
// the pipeline against pre-loaded data.
type MemorySource struct {
	records []Record
	pos     int

	// PingErr, when set, is returned by Ping to simulate an unreachable
	// source.
	PingErr error

	// FailAfter, when positive, makes the fetch that would cross this many
	// served records fail with FailErr instead.
	FailAfter int
	FailErr   error
}

// NewMemorySource creates a source over the given records.
func NewMemorySource(records ...Record) *MemorySource {
	return &MemorySource{records: records}
}

// Next returns up to limit records. io.EOF signals exhaustion.
func (s *MemorySource) Next(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailAfter > 0 && s.pos >= s.FailAfter {
		return nil, s.FailErr
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	end := s.pos + limit
	if end > len(s.records) {
		end = len(s.records)
	}
	if s.FailAfter > 0 && end > s.FailAfter {
		end = s.FailAfter
	}
	batch := s.records[s.pos:end]
	s.pos = end
	return batch, nil
}

// Ping reports the configured reachability.
func (s *MemorySource) Ping(ctx context.Context) error {
	return s.PingErr
}

// Close is a no-op.
func (s *MemorySource) Close() error {
	return nil
}
