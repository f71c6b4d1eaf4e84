package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// BlobSource reads JSONL record shards from a blob bucket. Shards are
// consumed in sorted key order, one at a time, so memory holds at most one
// decompressed shard plus the batch being assembled.
type BlobSource struct {
	bucket  *blob.Bucket
	prefix  string
	decoder *Decoder

	keys   []string
	listed bool
	cur    int
	reader *bufio.Reader
}

// NewBlobSource opens a bucket URL (file://, gs://, s3://) as a record
// source rooted at prefix.
func NewBlobSource(ctx context.Context, bucketURL, prefix string) (*BlobSource, error) {
	if bucketURL == "" {
		return nil, fmt.Errorf("blob source requires a bucket URL")
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &BlobSource{
		bucket:  bucket,
		prefix:  prefix,
		decoder: decoder,
	}, nil
}

// Ping verifies the bucket is reachable and readable.
func (s *BlobSource) Ping(ctx context.Context) error {
	accessible, err := s.bucket.IsAccessible(ctx)
	if err != nil {
		return fmt.Errorf("bucket not accessible: %w", err)
	}
	if !accessible {
		return fmt.Errorf("bucket not accessible")
	}
	return nil
}

// Next returns up to limit records. io.EOF signals exhaustion.
func (s *BlobSource) Next(ctx context.Context, limit int) ([]Record, error) {
	if limit < 1 {
		return nil, fmt.Errorf("batch limit must be positive, got %d", limit)
	}
	if !s.listed {
		if err := s.list(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]Record, 0, limit)
	for len(out) < limit {
		line, err := s.nextLine(ctx)
		if err == io.EOF {
			if len(out) == 0 {
				return nil, io.EOF
			}
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		// Document-store identifiers are excluded from the feature space.
		delete(rec, "_id")
		out = append(out, rec)
	}
	return out, nil
}

// list indexes the record shards under the prefix, sorted by key.
func (s *BlobSource) list(ctx context.Context) error {
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		if obj.IsDir || !IsRecordFile(obj.Key) {
			continue
		}
		s.keys = append(s.keys, obj.Key)
	}
	sort.Strings(s.keys)
	s.listed = true
	return nil
}

// nextLine yields the next raw line across shard boundaries.
func (s *BlobSource) nextLine(ctx context.Context) ([]byte, error) {
	for {
		if s.reader == nil {
			if s.cur >= len(s.keys) {
				return nil, io.EOF
			}
			data, err := s.readShard(ctx, s.keys[s.cur])
			if err != nil {
				return nil, err
			}
			s.reader = bufio.NewReader(bytes.NewReader(data))
		}

		line, err := s.reader.ReadBytes('\n')
		if err == io.EOF {
			s.reader = nil
			s.cur++
			if len(bytes.TrimSpace(line)) > 0 {
				return line, nil
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read shard %s: %w", s.keys[s.cur], err)
		}
		return line, nil
	}
}

// readShard reads and decompresses one shard.
func (s *BlobSource) readShard(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("open shard %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read shard %s: %w", key, err)
	}
	return s.decoder.Decode(key, data)
}

// Close releases resources.
func (s *BlobSource) Close() error {
	if s.decoder != nil {
		s.decoder.Close()
	}
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
