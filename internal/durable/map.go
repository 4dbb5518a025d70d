package durable

import (
	"context"
	"sync"
)

// DefaultMapQuota matches the per-origin budget browsers give local storage.
const DefaultMapQuota = 5 << 20

// MapStore keeps records in a map with a byte budget counted over keys and
// values. It outlives any TieredCache built on it, which is what a page
// reload looks like to the cache.
type MapStore struct {
	mu    sync.RWMutex
	data  map[string]string
	used  int64
	quota int64
}

// NewMapStore creates a map store. quota <= 0 uses DefaultMapQuota.
func NewMapStore(quota int64) *MapStore {
	if quota <= 0 {
		quota = DefaultMapQuota
	}
	return &MapStore{
		data:  make(map[string]string),
		quota: quota,
	}
}

func (s *MapStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MapStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := s.used + int64(len(key)+len(value))
	if old, ok := s.data[key]; ok {
		used -= int64(len(key) + len(old))
	}
	if used > s.quota {
		return quotaError(used, s.quota)
	}
	s.data[key] = value
	s.used = used
	return nil
}

func (s *MapStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.data[key]; ok {
		s.used -= int64(len(key) + len(old))
		delete(s.data, key)
	}
	return nil
}

func (s *MapStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return filterPrefix(keys, prefix), nil
}

// Used returns the bytes currently counted against the quota.
func (s *MapStore) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

func (s *MapStore) Ping(context.Context) error { return nil }

func (s *MapStore) Close() error { return nil }
