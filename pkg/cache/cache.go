// Package cache is a content-addressed, TTL-bound, two-tier cache: a bounded
// in-process LRU in front of an optional durable store (files or Redis).
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

const (
	DefaultMaxEntries = 1000
	DefaultTTL        = 24 * time.Hour
)

// Cache is the boundary producer stages depend on.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Logger is the subset of the application logger the cache reports through.
type Logger interface {
	Warn(module, message string, details map[string]interface{})
}

// Observer receives hit, miss and eviction notifications, e.g. for metrics.
type Observer interface {
	Hit(tier Tier)
	Miss()
	Evicted(n int)
	DurableError(op string)
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	MemoryHits    int64 `json:"memory_hits"`
	DurableHits   int64 `json:"durable_hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	Expirations   int64 `json:"expirations"`
	DurableErrors int64 `json:"durable_errors"`
	MemoryEntries int   `json:"memory_entries"`
	DurableTier   bool  `json:"durable_tier"`
}

// HitRate is hits over lookups, zero before the first lookup.
func (s Stats) HitRate() float64 {
	hits := s.MemoryHits + s.DurableHits
	total := hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

type counters struct {
	memoryHits, durableHits, misses atomic.Int64
	evictions, expirations          atomic.Int64
	durableErrors                   atomic.Int64
}

// VersionedCache checks memory first, then the durable tier, repopulating
// memory on a durable hit. TTL is enforced on every read.
type VersionedCache struct {
	mem        *memoryTier
	durable    DurableStore
	defaultTTL time.Duration
	now        func() time.Time
	logger     Logger
	observer   Observer
	stats      counters
}

// Option customizes a VersionedCache.
type Option func(*VersionedCache)

func WithMaxEntries(n int) Option {
	return func(c *VersionedCache) { c.mem = newMemoryTier(n) }
}

// WithDefaultTTL sets the TTL applied when Put is called with ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *VersionedCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

func WithDurable(store DurableStore) Option {
	return func(c *VersionedCache) { c.durable = store }
}

// WithClock overrides the clock used for StoredAt and expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(c *VersionedCache) {
		if clock != nil {
			c.now = clock
		}
	}
}

func WithLogger(l Logger) Option {
	return func(c *VersionedCache) { c.logger = l }
}

func WithObserver(o Observer) Option {
	return func(c *VersionedCache) { c.observer = o }
}

func New(opts ...Option) *VersionedCache {
	c := &VersionedCache{
		mem:        newMemoryTier(DefaultMaxEntries),
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get returns the cached value for key. Durable-tier failures are logged and
// reported as a miss; only context cancellation is returned as an error.
func (c *VersionedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	now := c.now()

	e, ok, expired := c.mem.get(key, now)
	if expired {
		c.stats.expirations.Add(1)
	}
	if ok {
		c.stats.memoryHits.Add(1)
		c.notifyHit(TierMemory)
		return cloneBytes(e.Value), true, nil
	}

	if c.durable == nil {
		return c.miss()
	}
	e, found, err := c.durable.Load(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		c.durableFailure("load", key, err)
		return c.miss()
	}
	if !found {
		return c.miss()
	}
	if e.Expired(now) {
		c.stats.expirations.Add(1)
		if err := c.durable.Delete(ctx, key); err != nil {
			c.durableFailure("delete", key, err)
		}
		return c.miss()
	}

	c.recordEvictions(c.mem.put(e))
	c.stats.durableHits.Add(1)
	c.notifyHit(TierDurable)
	return cloneBytes(e.Value), true, nil
}

// Put stores value under key in both tiers. A durable write failure is
// returned (as a *storage.StorageError) after the memory tier was updated.
func (c *VersionedCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	e := Entry{Key: key, Value: cloneBytes(value), StoredAt: c.now(), TTL: ttl}
	c.recordEvictions(c.mem.put(e))
	if c.durable == nil {
		return nil
	}
	if err := c.durable.Store(ctx, e); err != nil {
		c.durableFailure("store", key, err)
		return err
	}
	return nil
}

func (c *VersionedCache) Invalidate(ctx context.Context, key string) error {
	c.mem.delete(key)
	if c.durable == nil {
		return nil
	}
	return c.durable.Delete(ctx, key)
}

// Clear drops every key with the given prefix from both tiers and returns how
// many entries were removed. Keys are "<stage>:<digest>", so a stage name plus
// ":" clears one stage.
func (c *VersionedCache) Clear(ctx context.Context, prefix string) (int, error) {
	removed := c.mem.clear(prefix)
	if c.durable == nil {
		return removed, nil
	}
	n, err := c.durable.Clear(ctx, prefix)
	return removed + n, err
}

func (c *VersionedCache) Stats() Stats {
	return Stats{
		MemoryHits:    c.stats.memoryHits.Load(),
		DurableHits:   c.stats.durableHits.Load(),
		Misses:        c.stats.misses.Load(),
		Evictions:     c.stats.evictions.Load(),
		Expirations:   c.stats.expirations.Load(),
		DurableErrors: c.stats.durableErrors.Load(),
		MemoryEntries: c.mem.len(),
		DurableTier:   c.durable != nil,
	}
}

func (c *VersionedCache) Close() error {
	if c.durable == nil {
		return nil
	}
	return c.durable.Close()
}

func (c *VersionedCache) miss() ([]byte, bool, error) {
	c.stats.misses.Add(1)
	if c.observer != nil {
		c.observer.Miss()
	}
	return nil, false, nil
}

func (c *VersionedCache) notifyHit(t Tier) {
	if c.observer != nil {
		c.observer.Hit(t)
	}
}

func (c *VersionedCache) recordEvictions(n int) {
	if n == 0 {
		return
	}
	c.stats.evictions.Add(int64(n))
	if c.observer != nil {
		c.observer.Evicted(n)
	}
}

func (c *VersionedCache) durableFailure(op, key string, err error) {
	c.stats.durableErrors.Add(1)
	if c.observer != nil {
		c.observer.DurableError(op)
	}
	if c.logger != nil {
		c.logger.Warn("CACHE", "Durable tier "+op+" failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Memoize returns the cached value for key, or runs fn and caches its result.
// The bool reports whether the value came from the cache.
func Memoize(ctx context.Context, c Cache, key string, ttl time.Duration, fn func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	if v, ok, err := c.Get(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		return v, true, nil
	}
	v, err := fn(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := c.Put(ctx, key, v, ttl); err != nil {
		return v, false, err
	}
	return v, false, nil
}
