package durable

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
	"github.com/mikasazwj/warehouse-inventory-system/internal/circuitbreaker"
)

// errCircuitOpen is returned, wrapped in cache.ErrUnavailable, while the
// breaker rejects calls.
var errCircuitOpen = errors.New("circuit open")

// BreakerStore guards a Store with a circuit breaker. Only unavailability
// counts as a failure; serialization and quota errors mean the store
// answered.
type BreakerStore struct {
	next    Store
	breaker *circuitbreaker.Breaker
}

func NewBreakerStore(next Store, breaker *circuitbreaker.Breaker) *BreakerStore {
	return &BreakerStore{next: next, breaker: breaker}
}

func (s *BreakerStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.admit("get"); err != nil {
		return "", false, err
	}
	v, ok, err := s.next.Get(ctx, key)
	s.record(err)
	return v, ok, err
}

func (s *BreakerStore) Set(ctx context.Context, key, value string) error {
	if err := s.admit("set"); err != nil {
		return err
	}
	err := s.next.Set(ctx, key, value)
	s.record(err)
	return err
}

func (s *BreakerStore) Delete(ctx context.Context, key string) error {
	if err := s.admit("delete"); err != nil {
		return err
	}
	err := s.next.Delete(ctx, key)
	s.record(err)
	return err
}

func (s *BreakerStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := s.admit("keys"); err != nil {
		return nil, err
	}
	keys, err := s.next.Keys(ctx, prefix)
	s.record(err)
	return keys, err
}

// Ping bypasses the breaker.
func (s *BreakerStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *BreakerStore) Close() error {
	return s.next.Close()
}

// State returns the breaker state.
func (s *BreakerStore) State() circuitbreaker.State {
	return s.breaker.State()
}

// Unwrap returns the guarded store.
func (s *BreakerStore) Unwrap() Store {
	return s.next
}

func (s *BreakerStore) admit(op string) error {
	if s.breaker.Allow() {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", cache.ErrUnavailable, op, errCircuitOpen)
}

func (s *BreakerStore) record(err error) {
	switch {
	case err == nil,
		errors.Is(err, cache.ErrSerialization),
		errors.Is(err, cache.ErrQuotaExceeded),
		errors.Is(err, context.Canceled):
		s.breaker.RecordSuccess()
	default:
		s.breaker.RecordFailure()
	}
}
