package durable

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
)

func newTestFileStore(t *testing.T, opts FileOptions) *FileStore {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	s, err := NewFileStore(opts)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFileStore_Contract(t *testing.T) {
	testStoreContract(t, newTestFileStore(t, FileOptions{CompressionLevel: 3}))
}

func TestFileStore_CacheReload(t *testing.T) {
	testCacheReload(t, newTestFileStore(t, FileOptions{}))
}

func TestFileStore_RequiresDir(t *testing.T) {
	if _, err := NewFileStore(FileOptions{}); err == nil {
		t.Fatal("expected error without a directory")
	}
}

func TestFileStore_CompressesLargeRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestFileStore(t, FileOptions{Dir: dir, CompressionLevel: 3})

	large := strings.Repeat(`{"sku":"A-1","qty":4},`, 200)
	if err := s.Set(ctx, "cache_large", large); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "cache_small", "tiny"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, encodeFileName("cache_large")+zstdExt)); err != nil {
		t.Fatalf("large record should be compressed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, encodeFileName("cache_small")+plainExt)); err != nil {
		t.Fatalf("small record should be stored plain: %v", err)
	}
	if s.Used() >= int64(len(large)) {
		t.Fatalf("compression should reduce usage, used %d", s.Used())
	}

	v, ok, err := s.Get(ctx, "cache_large")
	if err != nil || !ok || v != large {
		t.Fatalf("large record did not round trip: ok=%v err=%v", ok, err)
	}

	// Shrinking the record replaces the compressed file.
	if err := s.Set(ctx, "cache_large", "short"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, encodeFileName("cache_large")+zstdExt)); !os.IsNotExist(err) {
		t.Fatalf("stale compressed file should be removed, stat err=%v", err)
	}
}

func TestFileStore_Quota(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t, FileOptions{MaxBytes: 8})

	if err := s.Set(ctx, "a", "12345678"); err != nil {
		t.Fatalf("write within quota: %v", err)
	}
	if err := s.Set(ctx, "b", "1"); !errors.Is(err, cache.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestFileStore_ReopenRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := newTestFileStore(t, FileOptions{Dir: dir})
	if err := s.Set(ctx, "cache_warehouses", "value"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// Stray files are ignored.
	os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644)

	reopened := newTestFileStore(t, FileOptions{Dir: dir})
	keys, err := reopened.Keys(ctx, "")
	if err != nil || len(keys) != 1 || keys[0] != "cache_warehouses" {
		t.Fatalf("Keys after reopen = %v, %v", keys, err)
	}
	if reopened.Used() != int64(len("value")) {
		t.Fatalf("expected usage to be rebuilt, got %d", reopened.Used())
	}
}

func TestFileStore_CorruptCompressedRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, encodeFileName("cache_warehouses")+zstdExt), []byte("not zstd"), 0o644)

	s := newTestFileStore(t, FileOptions{Dir: dir})
	if _, _, err := s.Get(ctx, "cache_warehouses"); !errors.Is(err, cache.ErrSerialization) {
		t.Fatalf("expected serialization error, got %v", err)
	}

	c := cache.New(s)
	if c.Has(ctx, cache.Warehouses) {
		t.Fatal("corrupt record should read as a miss")
	}
	if keys, _ := s.Keys(ctx, ""); len(keys) != 0 {
		t.Fatalf("corrupt record should be removed, got %v", keys)
	}
}

func TestFileNameRoundTrip(t *testing.T) {
	for _, key := range []string{"cache_user-permissions:42", "a/b\\c", ""} {
		name := encodeFileName(key) + plainExt
		got, ok := decodeFileName(name)
		if !ok || got != key {
			t.Fatalf("decodeFileName(%q) = %q, %v", name, got, ok)
		}
	}
	if _, ok := decodeFileName(".tmp-123"); ok {
		t.Fatal("temp files should be ignored")
	}
}
