// Package cache implements the tiered response cache used by the warehouse
// dashboard and permission loaders. Each key is routed by a static policy
// table to either the in-process memory store or a durable key-value store,
// entries carry an absolute expiry that is checked lazily on read, and a
// periodic sweep removes entries nobody reads anymore.
//
// Operations never fail observably. Durable failures are absorbed by
// falling back to memory and are reported through Result values to an
// optional Observer and the operational logger. The one exception is
// GetOrSet, which returns the fetch function's error unchanged.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSerialization is returned when a value cannot be converted to or
	// from the durable store's textual format.
	ErrSerialization = errors.New("cache: serialization failed")

	// ErrQuotaExceeded is returned by durable stores that reject a write
	// because their storage budget is exhausted.
	ErrQuotaExceeded = errors.New("cache: storage quota exceeded")

	// ErrUnavailable is returned by durable stores that cannot be reached.
	ErrUnavailable = errors.New("cache: storage unavailable")
)

// DefaultNamespace prefixes every durable record owned by a cache.
const DefaultNamespace = "cache_"

// DefaultSweepInterval is how often Start runs Cleanup.
const DefaultSweepInterval = 5 * time.Minute

// DurableStore is a string-keyed key-value store that outlives the process,
// shared with other users of the same storage. Implementations must be safe
// for concurrent use.
type DurableStore interface {
	// Get returns the stored string and true, or false if the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists stored keys starting with prefix. An empty prefix lists
	// everything.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Entry is a cached value with its expiry.
type Entry struct {
	Value    any
	ExpireAt time.Time
	StoredAt time.Time
}

// Expired reports whether the entry is no longer visible at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpireAt)
}

// Stats reports how many entries each backend holds. Durable counts only
// records under the cache's namespace.
type Stats struct {
	Memory  int `json:"memory"`
	Durable int `json:"durable"`
	Total   int `json:"total"`
}

// FetchFunc produces a value on a cache miss.
type FetchFunc func(ctx context.Context) (any, error)
