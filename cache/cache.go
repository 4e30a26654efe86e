// Package cache memoises slow lookups for a fixed time-to-live.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	at    time.Time
	value V
}

// Func wraps a lookup function with a TTL cache keyed by its argument.
// Concurrent misses for the same key may both call the function; the last result wins.
type Func[K comparable, V any] struct {
	fn      func(context.Context, K) V
	now     func() time.Time
	entries map[K]entry[V]
	ttl     time.Duration
	max     int
	mu      sync.Mutex
}

// Option configures a Func.
type Option func(*options)

type options struct {
	now func() time.Time
	max int
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMaxEntries bounds the cache. The oldest entry is evicted when full.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.max = n }
}

// New wraps fn so that results are reused for ttl.
func New[K comparable, V any](ttl time.Duration, fn func(context.Context, K) V, opts ...Option) *Func[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Func[K, V]{
		fn:      fn,
		now:     o.now,
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		max:     o.max,
	}
}

// Get returns the cached value for k if it is younger than the TTL,
// otherwise it calls the wrapped function and stores the result.
func (c *Func[K, V]) Get(ctx context.Context, k K) V {
	c.mu.Lock()
	e, ok := c.entries[k]
	now := c.now()
	c.mu.Unlock()

	if ok && now.Sub(e.at) < c.ttl {
		return e.value
	}
	return c.load(ctx, k)
}

// Fresh bypasses any cached value for k and stores the new result.
func (c *Func[K, V]) Fresh(ctx context.Context, k K) V {
	return c.load(ctx, k)
}

// Forget drops the cached value for k.
func (c *Func[K, V]) Forget(k K) {
	c.mu.Lock()
	delete(c.entries, k)
	c.mu.Unlock()
}

// Len returns the number of cached entries, fresh or stale.
func (c *Func[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Func[K, V]) load(ctx context.Context, k K) V {
	v := c.fn(ctx, k)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[k]; !exists && c.max > 0 && len(c.entries) >= c.max {
		c.evictOldest()
	}
	c.entries[k] = entry[V]{at: c.now(), value: v}
	return v
}

func (c *Func[K, V]) evictOldest() {
	var (
		oldest K
		at     time.Time
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.at.Before(at) {
			oldest, at, found = k, e.at, true
		}
	}
	if found {
		delete(c.entries, oldest)
	}
}
