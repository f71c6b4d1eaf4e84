package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	key := "run_1/data_ingestion/ingested/train.parquet"
	payload := []byte("payload bytes")

	ok, err := store.Exists(ctx, key)
	if err != nil || ok {
		t.Fatalf("Exists before write = %v, %v", ok, err)
	}

	if err := store.Write(ctx, key, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read = %q, want %q", got, payload)
	}

	ok, err = store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists after write = %v, %v", ok, err)
	}

	// no temp file left behind
	entries, err := os.ReadDir(filepath.Join(dir, "run_1", "data_ingestion", "ingested"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestLocalStoreOverwrite(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "a.json", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(ctx, "a.json", []byte("second")); err != nil {
		t.Fatal(err)
	}
	got, err := store.Read(ctx, "a.json")
	if err != nil || string(got) != "second" {
		t.Fatalf("Read = %q, %v", got, err)
	}
}

func TestLocalStorePrefixAndURI(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "team/")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "run_1/run.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	onDisk := filepath.Join(dir, "team", "run_1", "run.json")
	if _, err := os.Stat(onDisk); err != nil {
		t.Errorf("expected file at %s: %v", onDisk, err)
	}

	uri := store.URI("run_1/run.json")
	if !strings.HasPrefix(uri, "file://") || !strings.HasSuffix(uri, filepath.Join("team", "run_1", "run.json")) {
		t.Errorf("URI = %q", uri)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{Backend: "local"}); err == nil {
		t.Error("expected error for missing local_dir")
	}
	if _, err := New(ctx, Config{Backend: "blob"}); err == nil {
		t.Error("expected error for missing bucket_url")
	}
	if _, err := New(ctx, Config{Backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
