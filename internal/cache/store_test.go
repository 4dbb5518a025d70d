package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// fakeStore is a map-backed DurableStore whose operations can be made to fail.
type fakeStore struct {
	mu      sync.Mutex
	data    map[string]string
	setErr  error
	getErr  error
	delErr  error
	keysErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (s *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	return nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delErr != nil {
		return s.delErr
	}
	delete(s.data, key)
	return nil
}

func (s *fakeStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keysErr != nil {
		return nil, s.keysErr
	}
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fakeStore) raw(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *fakeStore) put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *fakeStore) failSets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
}

func (s *fakeStore) failGets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

func (s *fakeStore) failDeletes(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delErr = err
}

// recorder collects Results.
type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) Observe(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

// last returns the most recent Result for op.
func (r *recorder) last(op Op) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].Op == op {
			return r.results[i], true
		}
	}
	return Result{}, false
}

// count returns how many Results matched op and outcome.
func (r *recorder) count(op Op, outcome Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, res := range r.results {
		if res.Op == op && res.Outcome == outcome {
			n++
		}
	}
	return n
}

var testEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, store DurableStore, opts ...Option) (*TieredCache, *clock.Mock, *recorder) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(testEpoch)
	rec := &recorder{}
	opts = append([]Option{WithClock(mock), WithObserver(rec)}, opts...)
	return New(store, opts...), mock, rec
}
