package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
	"github.com/mikasazwj/warehouse-inventory-system/internal/logging"
)

// DefaultTrendPeriod is the trend window, in days, used when none is given.
const DefaultTrendPeriod = 30

// Warehouse is a warehouse the caller may see.
type Warehouse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Category is a goods category.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parentId,omitempty"`
}

// Loader reads API data through the cache. Payloads whose shape the cache
// does not care about are kept as raw JSON.
type Loader struct {
	api   *Client
	cache *cache.TieredCache
}

func NewLoader(api *Client, c *cache.TieredCache) *Loader {
	return &Loader{api: api, cache: c}
}

func load[T any](ctx context.Context, l *Loader, key cache.Key, path string, params map[string]string) (T, error) {
	return cache.GetOrSetAs(ctx, l.cache, key, func(ctx context.Context) (T, error) {
		var out T
		err := l.api.Get(ctx, path, params, &out)
		return out, err
	}, 0)
}

func (l *Loader) DashboardStats(ctx context.Context) (json.RawMessage, error) {
	return load[json.RawMessage](ctx, l, cache.DashboardStats, "/dashboard/stats", nil)
}

func (l *Loader) DashboardAlerts(ctx context.Context) (json.RawMessage, error) {
	return load[json.RawMessage](ctx, l, cache.DashboardAlerts, "/dashboard/alerts", nil)
}

func (l *Loader) DashboardTodos(ctx context.Context) (json.RawMessage, error) {
	return load[json.RawMessage](ctx, l, cache.DashboardTodos, "/dashboard/todos", nil)
}

// BusinessTrend loads the trend over period days. Each period is cached
// separately.
func (l *Loader) BusinessTrend(ctx context.Context, period int) (json.RawMessage, error) {
	if period <= 0 {
		period = DefaultTrendPeriod
	}
	p := strconv.Itoa(period)
	return load[json.RawMessage](ctx, l, cache.Scoped(cache.BusinessTrend, p), "/dashboard/trend",
		map[string]string{"period": p})
}

func (l *Loader) InventoryStats(ctx context.Context) (json.RawMessage, error) {
	return load[json.RawMessage](ctx, l, cache.InventoryStats, "/inventory/stats", nil)
}

func (l *Loader) Warehouses(ctx context.Context) ([]Warehouse, error) {
	return load[[]Warehouse](ctx, l, cache.Warehouses, "/warehouses/all", nil)
}

func (l *Loader) GoodsCategories(ctx context.Context) ([]Category, error) {
	return load[[]Category](ctx, l, cache.GoodsCategories, "/goods-categories/all", nil)
}

// UserPermissions loads the permission codes of the token's user. userID
// only scopes the cache entry.
func (l *Loader) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return load[[]string](ctx, l, cache.Scoped(cache.UserPermissions, userID), "/auth/permissions", nil)
}

// UserWarehouses loads the warehouses the token's user may access.
func (l *Loader) UserWarehouses(ctx context.Context, userID string) ([]Warehouse, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return load[[]Warehouse](ctx, l, cache.Scoped(cache.UserWarehouses, userID), "/auth/warehouses", nil)
}

// Invalidate drops cached entries after a write changed them.
func (l *Loader) Invalidate(ctx context.Context, keys ...cache.Key) {
	for _, k := range keys {
		l.cache.Delete(ctx, k)
	}
}

// InvalidateUser drops the per-user entries of userID.
func (l *Loader) InvalidateUser(ctx context.Context, userID string) {
	l.Invalidate(ctx,
		cache.Scoped(cache.UserPermissions, userID),
		cache.Scoped(cache.UserWarehouses, userID),
	)
}

// WarmResult reports one loader run by Warm.
type WarmResult struct {
	Key cache.Key
	Err error
}

type warmStep struct {
	key cache.Key
	run func(context.Context) error
}

func step[T any](key cache.Key, fn func(context.Context) (T, error)) warmStep {
	return warmStep{key: key, run: func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	}}
}

// Warm runs every loader once so the cache is populated before the first
// dashboard request. Per-user loaders run only when userID is set. Failures
// do not stop the remaining loaders; the joined error lists them all.
func (l *Loader) Warm(ctx context.Context, userID string) ([]WarmResult, error) {
	steps := []warmStep{
		step(cache.DashboardStats, l.DashboardStats),
		step(cache.DashboardAlerts, l.DashboardAlerts),
		step(cache.DashboardTodos, l.DashboardTodos),
		step(cache.Scoped(cache.BusinessTrend, strconv.Itoa(DefaultTrendPeriod)), func(ctx context.Context) (json.RawMessage, error) {
			return l.BusinessTrend(ctx, DefaultTrendPeriod)
		}),
		step(cache.InventoryStats, l.InventoryStats),
		step(cache.Warehouses, l.Warehouses),
		step(cache.GoodsCategories, l.GoodsCategories),
	}
	if userID != "" {
		steps = append(steps,
			step(cache.Scoped(cache.UserPermissions, userID), func(ctx context.Context) ([]string, error) {
				return l.UserPermissions(ctx, userID)
			}),
			step(cache.Scoped(cache.UserWarehouses, userID), func(ctx context.Context) ([]Warehouse, error) {
				return l.UserWarehouses(ctx, userID)
			}),
		)
	}

	log := logging.Component("warehouse")
	results := make([]WarmResult, 0, len(steps))
	var errs []error
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		err := s.run(ctx)
		results = append(results, WarmResult{Key: s.key, Err: err})
		if err != nil {
			log.Warn("warm failed", "key", s.key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.key, err))
		}
	}
	return results, errors.Join(errs...)
}
