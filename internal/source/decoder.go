package source

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Decoder decompresses record shard payloads.
type Decoder struct {
	zstdDecoder *zstd.Decoder
}

// NewDecoder creates a new shard decoder.
func NewDecoder() (*Decoder, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Decoder{zstdDecoder: dec}, nil
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	if d.zstdDecoder != nil {
		d.zstdDecoder.Close()
	}
}

// IsRecordFile reports whether a key looks like a JSONL record shard.
func IsRecordFile(key string) bool {
	for _, suffix := range []string{".jsonl", ".ndjson", ".jsonl.gz", ".jsonl.zst", ".ndjson.gz", ".ndjson.zst"} {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// Decode returns the uncompressed payload of a shard, keyed by its suffix.
func (d *Decoder) Decode(key string, data []byte) ([]byte, error) {
	switch {
	case strings.HasSuffix(key, ".zst"):
		raw, err := d.zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress %s: %w", key, err)
		}
		return raw, nil
	case strings.HasSuffix(key, ".gz"):
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip open %s: %w", key, err)
		}
		defer r.Close()
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress %s: %w", key, err)
		}
		return raw, nil
	default:
		return data, nil
	}
}
