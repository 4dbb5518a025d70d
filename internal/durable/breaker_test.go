package durable

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
	"github.com/mikasazwj/warehouse-inventory-system/internal/circuitbreaker"
)

// flakyStore fails every call with err while it is set.
type flakyStore struct {
	*MapStore
	err   error
	calls int
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.calls++
	if s.err != nil {
		return "", false, s.err
	}
	return s.MapStore.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return s.MapStore.Set(ctx, key, value)
}

func newTestBreakerStore(mock *clock.Mock) (*BreakerStore, *flakyStore) {
	inner := &flakyStore{MapStore: NewMapStore(0)}
	b := circuitbreaker.New(circuitbreaker.Config{
		ErrorPct:       50,
		MinRequests:    2,
		WindowDuration: time.Minute,
		OpenDuration:   10 * time.Second,
		HalfOpenProbes: 1,
		Clock:          mock,
	})
	return NewBreakerStore(inner, b), inner
}

func TestBreakerStore_Contract(t *testing.T) {
	s, _ := newTestBreakerStore(clock.NewMock())
	testStoreContract(t, s)
}

func TestBreakerStore_OpensOnUnavailable(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	s, inner := newTestBreakerStore(mock)

	inner.err = fmt.Errorf("%w: connection refused", cache.ErrUnavailable)
	for i := 0; i < 2; i++ {
		if err := s.Set(ctx, "cache_k", "v"); err == nil {
			t.Fatal("expected error from failing store")
		}
	}
	if s.State() != circuitbreaker.StateOpen {
		t.Fatalf("expected open breaker, got %v", s.State())
	}

	calls := inner.calls
	_, _, err := s.Get(ctx, "cache_k")
	if !errors.Is(err, cache.ErrUnavailable) || !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected circuit-open error, got %v", err)
	}
	if inner.calls != calls {
		t.Fatal("open breaker should not reach the store")
	}

	inner.err = nil
	mock.Add(10 * time.Second)
	if err := s.Set(ctx, "cache_k", "v"); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if s.State() != circuitbreaker.StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", s.State())
	}
}

func TestBreakerStore_QuotaIsNotAFailure(t *testing.T) {
	ctx := context.Background()
	s, inner := newTestBreakerStore(clock.NewMock())

	inner.err = fmt.Errorf("%w: full", cache.ErrQuotaExceeded)
	for i := 0; i < 5; i++ {
		s.Set(ctx, "cache_k", "v")
	}
	if s.State() != circuitbreaker.StateClosed {
		t.Fatalf("quota errors should not trip the breaker, got %v", s.State())
	}
}

func TestBreakerStore_CacheFallsBackWhileOpen(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	s, inner := newTestBreakerStore(mock)
	c := cache.New(s, cache.WithClock(mock))

	inner.err = cache.ErrUnavailable
	c.Set(ctx, cache.Warehouses, "a", 0)
	c.Set(ctx, cache.GoodsCategories, "b", 0)

	if s.State() != circuitbreaker.StateOpen {
		t.Fatalf("expected open breaker, got %v", s.State())
	}
	if v, ok := c.Get(ctx, cache.Warehouses); !ok || v != "a" {
		t.Fatalf("expected memory fallback value, got %v (ok=%v)", v, ok)
	}
	if s.Unwrap() != Store(inner) {
		t.Fatal("Unwrap should return the guarded store")
	}
}
