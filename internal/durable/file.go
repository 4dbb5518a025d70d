package durable

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
)

const (
	plainExt = ".rec"
	zstdExt  = ".zst"

	// compressThreshold skips zstd for records too small to benefit.
	compressThreshold = 1024
)

// FileOptions configures a FileStore.
type FileOptions struct {
	Dir              string
	MaxBytes         int64 // 0 means unlimited
	CompressionLevel int   // zstd level 1-22; 0 disables compression
}

// FileStore keeps one file per key under Dir. File names are the
// hex-encoded key, so any key string is safe. Records larger than 1 KiB are
// zstd-compressed when compression is enabled. Writes go through a temp file
// and rename, so a crash never leaves a half-written record behind.
type FileStore struct {
	dir      string
	maxBytes int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	sizes map[string]int64 // key -> bytes on disk
	used  int64
}

// NewFileStore opens (creating if needed) a file store rooted at opts.Dir.
func NewFileStore(opts FileOptions) (*FileStore, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("file store directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file store directory: %w", err)
	}

	st := &FileStore{
		dir:      opts.Dir,
		maxBytes: opts.MaxBytes,
		sizes:    make(map[string]int64),
	}

	var err error
	st.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if opts.CompressionLevel > 0 {
		st.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.CompressionLevel)))
		if err != nil {
			st.decoder.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
	}

	if err := st.scan(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// scan rebuilds the size index from the directory.
func (s *FileStore) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read file store directory: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		key, ok := decodeFileName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		s.used += info.Size() - s.sizes[key]
		s.sizes[key] = info.Size()
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sizes[key]; !ok {
		return "", false, nil
	}
	path, compressed, err := s.locate(key)
	if errors.Is(err, fs.ErrNotExist) {
		s.forget(key)
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("stat record", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, unavailable("read record", err)
	}
	if compressed {
		data, err = s.decoder.DecodeAll(data, nil)
		if err != nil {
			return "", false, fmt.Errorf("%w: decompress %s: %v", cache.ErrSerialization, key, err)
		}
	}
	return string(data), true, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	data := []byte(value)
	ext := plainExt
	if s.encoder != nil && len(data) > compressThreshold {
		if packed := s.encoder.EncodeAll(data, nil); len(packed) < len(data) {
			data = packed
			ext = zstdExt
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	need := s.used - s.sizes[key] + int64(len(data))
	if s.maxBytes > 0 && need > s.maxBytes {
		return quotaError(need, s.maxBytes)
	}

	name := encodeFileName(key)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return unavailable("create temp file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return unavailable("write record", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return unavailable("close record", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name+ext)); err != nil {
		os.Remove(tmp.Name())
		return unavailable("rename record", err)
	}
	// A record may switch between plain and compressed; drop the other form.
	other := zstdExt
	if ext == zstdExt {
		other = plainExt
	}
	os.Remove(filepath.Join(s.dir, name+other))

	s.used = need
	s.sizes[key] = int64(len(data))
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := encodeFileName(key)
	for _, ext := range []string{plainExt, zstdExt} {
		if err := os.Remove(filepath.Join(s.dir, name+ext)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return unavailable("remove record", err)
		}
	}
	s.forget(key)
	return nil
}

func (s *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sizes))
	for k := range s.sizes {
		keys = append(keys, k)
	}
	return filterPrefix(keys, prefix), nil
}

// Used returns the bytes on disk counted against MaxBytes.
func (s *FileStore) Used() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *FileStore) Ping(context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

// Close releases the zstd codecs. The store must not be used afterwards.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encoder != nil {
		s.encoder.Close()
		s.encoder = nil
	}
	if s.decoder != nil {
		s.decoder.Close()
		s.decoder = nil
	}
	return nil
}

// locate must be called under lock.
func (s *FileStore) locate(key string) (string, bool, error) {
	name := encodeFileName(key)
	for _, ext := range []string{zstdExt, plainExt} {
		path := filepath.Join(s.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, ext == zstdExt, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", false, err
		}
	}
	return "", false, fs.ErrNotExist
}

// forget must be called under lock.
func (s *FileStore) forget(key string) {
	s.used -= s.sizes[key]
	delete(s.sizes, key)
}

func encodeFileName(key string) string {
	return hex.EncodeToString([]byte(key))
}

func decodeFileName(name string) (string, bool) {
	var base string
	switch {
	case strings.HasSuffix(name, plainExt):
		base = strings.TrimSuffix(name, plainExt)
	case strings.HasSuffix(name, zstdExt):
		base = strings.TrimSuffix(name, zstdExt)
	default:
		return "", false
	}
	raw, err := hex.DecodeString(base)
	if err != nil {
		return "", false
	}
	return string(raw), true
}
