package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/mikasazwj/warehouse-inventory-system/internal/logging"
	"github.com/mikasazwj/warehouse-inventory-system/internal/observability"
)

// TieredCache routes each key to the memory store or the durable store
// according to its policy. A durable-policy key whose write failed is kept
// in memory instead; reads of durable-policy keys therefore look in memory
// first, and a later successful durable write drops the memory copy so a
// key lives in one backend at a time.
//
// When the fallback write cannot delete the older durable record either, the
// key is marked stale: reads never fall through to that record, and every
// later read, Set, Delete, Clear or Cleanup retries the delete until it
// succeeds. Marks live in process memory only.
//
// Set, Get, Has, Delete, Clear, Cleanup and Stats hold the cache lock for
// their whole duration and are atomic with respect to each other. GetOrSet
// releases it while fetch runs.
type TieredCache struct {
	mu       sync.Mutex
	memory   *MemoryStore
	durable  DurableStore
	policies PolicyTable

	namespace string
	clock     clock.Clock
	interval  time.Duration
	observer  Observer
	log       *slog.Logger
	flight    *singleflight.Group

	stale map[string]struct{} // durable keys whose record predates a fallback write

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a TieredCache.
type Option func(*TieredCache)

// WithPolicies replaces the default policy table. The table is copied.
func WithPolicies(t PolicyTable) Option {
	return func(c *TieredCache) { c.policies = t.Clone() }
}

// WithNamespace sets the durable key prefix (default "cache_").
func WithNamespace(ns string) Option {
	return func(c *TieredCache) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// WithClock injects the time source used for expiry and the sweep ticker.
func WithClock(clk clock.Clock) Option {
	return func(c *TieredCache) { c.clock = clk }
}

// WithSweepInterval sets how often Start runs Cleanup (default 5m).
func WithSweepInterval(d time.Duration) Option {
	return func(c *TieredCache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithObserver registers an Observer for every operation's Result.
func WithObserver(o Observer) Option {
	return func(c *TieredCache) { c.observer = o }
}

// WithLogger overrides the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *TieredCache) { c.log = l }
}

// WithSingleFlight makes concurrent GetOrSet misses on the same key share
// one fetch. It is off by default.
func WithSingleFlight(enabled bool) Option {
	return func(c *TieredCache) {
		if enabled {
			c.flight = &singleflight.Group{}
		} else {
			c.flight = nil
		}
	}
}

// New creates a cache over durable. A nil durable store makes every
// durable-policy write fall back to memory.
func New(durable DurableStore, opts ...Option) *TieredCache {
	c := &TieredCache{
		memory:    NewMemoryStore(),
		durable:   durable,
		policies:  DefaultPolicies(),
		namespace: DefaultNamespace,
		clock:     clock.New(),
		interval:  DefaultSweepInterval,
		stale:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Namespace returns the durable key prefix.
func (c *TieredCache) Namespace() string { return c.namespace }

// Policies returns a copy of the policy table.
func (c *TieredCache) Policies() PolicyTable { return c.policies.Clone() }

// Set stores value under key. ttl > 0 overrides the policy TTL.
func (c *TieredCache) Set(ctx context.Context, key Key, value any, ttl time.Duration) {
	c.mu.Lock()
	r := c.set(ctx, key, value, ttl)
	c.mu.Unlock()
	c.report(r)
}

// Get returns the live value stored under key.
func (c *TieredCache) Get(ctx context.Context, key Key) (any, bool) {
	c.mu.Lock()
	v, r := c.get(ctx, key)
	c.mu.Unlock()
	c.report(r)
	return v, r.Outcome == OutcomeHit
}

// Has reports whether Get would return a value.
func (c *TieredCache) Has(ctx context.Context, key Key) bool {
	_, ok := c.Get(ctx, key)
	return ok
}

// Delete removes key regardless of its expiry.
func (c *TieredCache) Delete(ctx context.Context, key Key) {
	c.mu.Lock()
	r := c.delete(ctx, key)
	c.mu.Unlock()
	c.report(r)
}

// Clear removes every memory entry and every durable record under the
// namespace. Durable records outside the namespace are left alone.
func (c *TieredCache) Clear(ctx context.Context) {
	c.mu.Lock()
	r := c.clear(ctx)
	c.mu.Unlock()
	c.report(r)
}

// Cleanup removes every expired entry from both backends, along with
// durable records that no longer decode.
func (c *TieredCache) Cleanup(ctx context.Context) {
	c.mu.Lock()
	mem, dur := c.cleanup(ctx)
	c.mu.Unlock()
	c.report(mem)
	c.report(dur)
}

// Stats counts entries per backend.
func (c *TieredCache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	s, r := c.stats(ctx)
	c.mu.Unlock()
	c.report(r)
	return s
}

// GetOrSet returns the cached value for key, or calls fetch and stores its
// result. An error from fetch is returned unchanged and nothing is stored.
// Without WithSingleFlight, concurrent misses each call fetch.
func (c *TieredCache) GetOrSet(ctx context.Context, key Key, fetch FetchFunc, ttl time.Duration) (any, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	return c.load(ctx, key, fetch, ttl)
}

// load runs fetch for a key already known to be missing.
func (c *TieredCache) load(ctx context.Context, key Key, fetch FetchFunc, ttl time.Duration) (any, error) {
	if c.flight == nil {
		return c.fetchAndStore(ctx, key, fetch, ttl)
	}
	v, err, _ := c.flight.Do(string(key), func() (any, error) {
		return c.fetchAndStore(ctx, key, fetch, ttl)
	})
	return v, err
}

func (c *TieredCache) fetchAndStore(ctx context.Context, key Key, fetch FetchFunc, ttl time.Duration) (any, error) {
	ctx, span := observability.StartSpan(ctx, "cache.fetch",
		observability.AttrCacheKey.String(string(key)),
		observability.AttrCacheDomain.String(string(key.Domain())),
	)
	defer span.End()

	start := c.clock.Now()
	v, err := fetch(ctx)
	took := c.clock.Since(start)
	if err != nil {
		observability.SetSpanError(span, err)
		c.report(Result{Op: OpFetch, Key: key, Outcome: OutcomeError, Err: err, Duration: took})
		return nil, err
	}
	observability.SetSpanOK(span)
	c.report(Result{Op: OpFetch, Key: key, Outcome: OutcomeStored, Duration: took})
	c.Set(ctx, key, v, ttl)
	return v, nil
}

// Start runs Cleanup every sweep interval until ctx is cancelled or Stop
// is called. Calling Start on a running cache does nothing; once the sweep
// has ended because ctx was cancelled, Start runs a new one.
func (c *TieredCache) Start(ctx context.Context) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.done != nil {
		select {
		case <-c.done:
			c.cancel()
		default:
			return
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := c.clock.Ticker(c.interval)
	c.cancel = cancel
	c.done = done
	go c.sweepLoop(ctx, ticker, done)
}

// Stop halts the periodic sweep and waits for it to exit.
func (c *TieredCache) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

func (c *TieredCache) sweepLoop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// --- operations below run with c.mu held ---

func (c *TieredCache) resolve(key Key) Policy {
	p, known := c.policies.Resolve(key)
	if !known {
		c.logger().Debug("no cache policy for key, using default", "key", key)
	}
	return p
}

func (c *TieredCache) durableKey(key Key) string {
	return c.namespace + string(key)
}

func (c *TieredCache) set(ctx context.Context, key Key, value any, ttl time.Duration) Result {
	p := c.resolve(key)
	if ttl <= 0 {
		ttl = p.TTL
	}
	now := c.clock.Now()
	e := &Entry{Value: value, ExpireAt: now.Add(ttl), StoredAt: now}

	if p.Backend == BackendMemory {
		c.memory.Set(string(key), e)
		return Result{Op: OpSet, Key: key, Backend: BackendMemory, Outcome: OutcomeStored}
	}

	dk := c.durableKey(key)
	err := c.writeDurable(ctx, key, e)
	if err == nil {
		c.memory.Delete(string(key))
		delete(c.stale, dk)
		return Result{Op: OpSet, Key: key, Backend: BackendDurable, Outcome: OutcomeStored}
	}

	c.memory.Set(string(key), e)
	if c.durable != nil {
		c.stale[dk] = struct{}{}
		c.dropStale(ctx, dk)
	}
	return Result{Op: OpSet, Key: key, Backend: BackendMemory, Outcome: OutcomeFallback, Err: err}
}

// dropStale retries the delete of a stale durable record. The mark is
// cleared once the delete succeeds.
func (c *TieredCache) dropStale(ctx context.Context, dk string) error {
	if _, ok := c.stale[dk]; !ok {
		return nil
	}
	if err := c.durable.Delete(ctx, dk); err != nil {
		return err
	}
	delete(c.stale, dk)
	return nil
}

func (c *TieredCache) writeDurable(ctx context.Context, key Key, e *Entry) error {
	if c.durable == nil {
		return ErrUnavailable
	}
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return c.durable.Set(ctx, c.durableKey(key), data)
}

func (c *TieredCache) get(ctx context.Context, key Key) (any, Result) {
	p := c.resolve(key)
	now := c.clock.Now()

	dk := c.durableKey(key)
	if e, ok := c.memory.Get(string(key)); ok {
		if e.Expired(now) {
			c.memory.Delete(string(key))
			if c.durable != nil {
				c.dropStale(ctx, dk)
			}
			return nil, Result{Op: OpGet, Key: key, Backend: BackendMemory, Outcome: OutcomeExpired}
		}
		return e.Value, Result{Op: OpGet, Key: key, Backend: BackendMemory, Outcome: OutcomeHit}
	}

	if p.Backend == BackendMemory || c.durable == nil {
		return nil, Result{Op: OpGet, Key: key, Backend: p.Backend, Outcome: OutcomeMiss}
	}
	if _, marked := c.stale[dk]; marked {
		// Whatever the store holds was overwritten by a fallback write.
		c.dropStale(ctx, dk)
		return nil, Result{Op: OpGet, Key: key, Backend: BackendDurable, Outcome: OutcomeMiss}
	}

	raw, ok, err := c.durable.Get(ctx, dk)
	if err != nil && !errors.Is(err, ErrSerialization) {
		return nil, Result{Op: OpGet, Key: key, Backend: BackendDurable, Outcome: OutcomeError, Err: err}
	}
	if err == nil && !ok {
		return nil, Result{Op: OpGet, Key: key, Backend: BackendDurable, Outcome: OutcomeMiss}
	}
	var e *Entry
	if err == nil {
		e, err = decodeEntry(raw)
	}
	if err != nil {
		_ = c.durable.Delete(ctx, dk)
		return nil, Result{Op: OpGet, Key: key, Backend: BackendDurable, Outcome: OutcomeCorrupt, Err: err}
	}
	if e.Expired(now) {
		_ = c.durable.Delete(ctx, dk)
		return nil, Result{Op: OpGet, Key: key, Backend: BackendDurable, Outcome: OutcomeExpired}
	}
	return e.Value, Result{Op: OpGet, Key: key, Backend: BackendDurable, Outcome: OutcomeHit}
}

func (c *TieredCache) delete(ctx context.Context, key Key) Result {
	p := c.resolve(key)
	c.memory.Delete(string(key))
	r := Result{Op: OpDelete, Key: key, Backend: p.Backend, Outcome: OutcomeDeleted}
	if c.durable == nil {
		return r
	}
	dk := c.durableKey(key)
	_, marked := c.stale[dk]
	if p.Backend != BackendDurable && !marked {
		return r
	}
	if err := c.durable.Delete(ctx, dk); err != nil {
		r.Outcome = OutcomeError
		r.Err = err
		return r
	}
	delete(c.stale, dk)
	return r
}

func (c *TieredCache) clear(ctx context.Context) Result {
	r := Result{Op: OpClear, Outcome: OutcomeCleared}
	r.Removed = c.memory.Clear()
	if c.durable == nil {
		return r
	}
	keys, err := c.namespaceKeys(ctx)
	if err != nil {
		r.Outcome, r.Err = OutcomeError, err
		return r
	}
	for _, k := range keys {
		if err := c.durable.Delete(ctx, k); err != nil {
			r.Outcome, r.Err = OutcomeError, err
			continue
		}
		delete(c.stale, k)
		r.Removed++
	}
	return r
}

func (c *TieredCache) cleanup(ctx context.Context) (mem, dur Result) {
	now := c.clock.Now()
	mem = Result{Op: OpCleanup, Backend: BackendMemory, Outcome: OutcomeCleared}
	mem.Removed = c.memory.DeleteExpired(now)

	dur = Result{Op: OpCleanup, Backend: BackendDurable, Outcome: OutcomeCleared}
	if c.durable == nil {
		return mem, dur
	}
	for dk := range c.stale {
		if err := c.dropStale(ctx, dk); err != nil {
			dur.Outcome, dur.Err = OutcomeError, err
		}
	}
	keys, err := c.namespaceKeys(ctx)
	if err != nil {
		dur.Outcome, dur.Err = OutcomeError, err
		return mem, dur
	}
	for _, k := range keys {
		if _, marked := c.stale[k]; marked {
			continue
		}
		raw, ok, err := c.durable.Get(ctx, k)
		switch {
		case errors.Is(err, ErrSerialization):
			// unreadable record, drop it
		case err != nil:
			dur.Outcome, dur.Err = OutcomeError, err
			continue
		case !ok:
			continue
		default:
			if e, err := decodeEntry(raw); err == nil && !e.Expired(now) {
				continue
			}
		}
		if err := c.durable.Delete(ctx, k); err != nil {
			dur.Outcome, dur.Err = OutcomeError, err
			continue
		}
		dur.Removed++
	}
	return mem, dur
}

func (c *TieredCache) stats(ctx context.Context) (Stats, Result) {
	s := Stats{Memory: c.memory.Len()}
	r := Result{Op: OpStats, Outcome: OutcomeHit}
	if c.durable != nil {
		keys, err := c.namespaceKeys(ctx)
		if err != nil {
			r.Outcome, r.Err = OutcomeError, err
		}
		s.Durable = len(keys)
	}
	s.Total = s.Memory + s.Durable
	return s, r
}

// namespaceKeys lists durable keys under the namespace. Drivers filter by
// prefix already; the check here keeps foreign records safe from a driver
// that ignores it.
func (c *TieredCache) namespaceKeys(ctx context.Context) ([]string, error) {
	keys, err := c.durable.Keys(ctx, c.namespace)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, c.namespace) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *TieredCache) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return logging.Component("cache")
}

func (c *TieredCache) report(r Result) {
	if c.observer != nil {
		c.observer.Observe(r)
	}
	l := c.logger()
	switch r.Outcome {
	case OutcomeFallback:
		l.Warn("durable write failed, entry kept in memory", "key", r.Key, "error", r.Err)
	case OutcomeCorrupt:
		l.Warn("corrupt durable record removed", "key", r.Key, "error", r.Err)
	case OutcomeError:
		if r.Op == OpFetch {
			l.Debug("cache fetch failed", "key", r.Key, "error", r.Err)
			return
		}
		l.Warn("cache store error", "op", r.Op, "key", r.Key, "backend", r.Backend, "error", r.Err)
	case OutcomeCleared:
		if r.Op == OpCleanup && r.Removed > 0 {
			l.Debug("cache sweep", "backend", r.Backend, "removed", r.Removed)
		}
	}
}
