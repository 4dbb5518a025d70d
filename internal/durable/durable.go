// Package durable provides DurableStore drivers for the tiered cache: an
// in-process quota-bounded map, a compressed file store, Redis and
// Postgres, plus a circuit-breaking wrapper for the networked ones.
package durable

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Store is a cache.DurableStore that holds resources.
type Store interface {
	cache.DurableStore
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*MapStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*BreakerStore)(nil)
)

func quotaError(need, quota int64) error {
	return fmt.Errorf("%w: need %d bytes, quota %d", cache.ErrQuotaExceeded, need, quota)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", cache.ErrUnavailable, op, err)
}

// filterPrefix returns the sorted keys starting with prefix.
func filterPrefix(keys []string, prefix string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
