package durable

import (
	"context"
	"fmt"

	"github.com/mikasazwj/warehouse-inventory-system/internal/circuitbreaker"
)

// Options selects and configures a driver for Open.
type Options struct {
	Driver   string
	MapQuota int64
	File     FileOptions
	Redis    RedisConfig
	Postgres PostgresConfig

	// Breaker wraps the driver in a BreakerStore when enabled. The
	// in-process drivers are never wrapped.
	Breaker circuitbreaker.Config

	// OnBreakerChange, if set, is registered on the breaker.
	OnBreakerChange func(from, to circuitbreaker.State)
}

// Open builds the store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		st  Store
		err error
	)
	switch opts.Driver {
	case "", DriverMemory:
		return NewMapStore(opts.MapQuota), nil
	case DriverFile:
		fs, err := NewFileStore(opts.File)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return fs, nil
	case DriverRedis:
		st, err = NewRedisStore(ctx, opts.Redis)
	case DriverPostgres:
		st, err = NewPostgresStore(ctx, opts.Postgres)
	default:
		return nil, fmt.Errorf("unknown durable driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", opts.Driver, err)
	}
	if opts.Breaker.Enabled() {
		b := circuitbreaker.New(opts.Breaker)
		if opts.OnBreakerChange != nil {
			b.OnStateChange(opts.OnBreakerChange)
		}
		st = NewBreakerStore(st, b)
	}
	return st, nil
}
