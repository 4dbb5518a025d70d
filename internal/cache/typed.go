package cache

import (
	"context"
	"time"
)

// GetAs is Get followed by As. A stored value that cannot be converted to
// T is treated like a corrupt record: it is deleted and reported absent.
func GetAs[T any](ctx context.Context, c *TieredCache, key Key) (T, bool) {
	var zero T
	v, ok := c.Get(ctx, key)
	if !ok {
		return zero, false
	}
	out, err := As[T](v)
	if err != nil {
		c.logger().Warn("cached value has unexpected shape, dropping", "key", key, "error", err)
		c.Delete(ctx, key)
		return zero, false
	}
	return out, true
}

// GetOrSetAs is the typed form of GetOrSet.
func GetOrSetAs[T any](ctx context.Context, c *TieredCache, key Key, fetch func(context.Context) (T, error), ttl time.Duration) (T, error) {
	if v, ok := GetAs[T](ctx, c, key); ok {
		return v, nil
	}
	v, err := c.load(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, ttl)
	if err != nil {
		var zero T
		return zero, err
	}
	return As[T](v)
}
