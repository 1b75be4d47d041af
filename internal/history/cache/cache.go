// Package cache implements the TTL- and capacity-bounded caches in front of
// the store discovery scans.
//
// Entries are keyed by an optional context and both range bounds truncated to
// the minute, so requests issued within the same minute share an entry. When
// the cache is full the entry with the oldest insertion time is evicted; reads
// do not refresh an entry's position.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/logbook/internal/metrics"
)

// Key identifies a cached discovery result.
type Key struct {
	Context string
	From    time.Time
	To      time.Time
}

// NewKey builds a key with both instants truncated to the start of their minute.
func NewKey(context string, from, to time.Time) Key {
	return Key{
		Context: context,
		From:    from.UTC().Truncate(time.Minute),
		To:      to.UTC().Truncate(time.Minute),
	}
}

// String returns the flat form used for singleflight.
func (k Key) String() string {
	return fmt.Sprintf("%s|%d|%d", k.Context, k.From.Unix(), k.To.Unix())
}

// Entry is one cached value.
type Entry[V any] struct {
	Key        Key
	Value      V
	InsertedAt time.Time
}

// Stats holds cache counters.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
}

// TTLCache is safe for concurrent use. Every operation holds a single mutex,
// so readers never observe a partially applied insert or eviction.
type TTLCache[V any] struct {
	name     string
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	entries map[Key]*Entry[V]
	stats   Stats

	group singleflight.Group
}

// New creates a cache. name labels its metrics.
func New[V any](name string, ttl time.Duration, capacity int) *TTLCache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &TTLCache[V]{
		name:     name,
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		entries:  make(map[Key]*Entry[V], capacity),
	}
}

// WithClock replaces the clock. Intended for tests.
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Get returns the value for key if present and not expired.
// Expired entries are removed.
func (c *TTLCache[V]) Get(key Key) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}

	if c.expiredLocked(e) {
		delete(c.entries, key)
		c.stats.Expired++
		c.stats.Misses++
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}

	c.stats.Hits++
	metrics.CacheRequestsTotal.WithLabelValues(c.name, "hit").Inc()
	return e.Value, true
}

// Set stores value under key, evicting the oldest insertion when full.
func (c *TTLCache[V]) Set(key Key, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.purgeExpiredLocked()
		if len(c.entries) >= c.capacity {
			c.evictOldestLocked()
		}
	}

	c.entries[key] = &Entry[V]{
		Key:        key,
		Value:      value,
		InsertedAt: c.now(),
	}
}

// GetOrLoad returns the cached value or runs load once for all concurrent
// callers missing the same key, storing a successful result.
func (c *TTLCache[V]) GetOrLoad(ctx context.Context, key Key, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		// A concurrent loader may have filled the entry meanwhile.
		if v, ok := c.peek(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// peek looks up key without touching statistics.
func (c *TTLCache[V]) peek(key Key) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.expiredLocked(e) {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Delete removes key.
func (c *TTLCache[V]) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*Entry[V], c.capacity)
}

// Len returns the number of stored entries, including expired ones not yet removed.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *TTLCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	return s
}

func (c *TTLCache[V]) expiredLocked(e *Entry[V]) bool {
	return c.now().Sub(e.InsertedAt) >= c.ttl
}

func (c *TTLCache[V]) purgeExpiredLocked() {
	for k, e := range c.entries {
		if c.expiredLocked(e) {
			delete(c.entries, k)
			c.stats.Expired++
		}
	}
}

func (c *TTLCache[V]) evictOldestLocked() {
	var (
		oldestKey Key
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.InsertedAt.Before(oldest) {
			oldestKey, oldest, found = k, e.InsertedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
		metrics.CacheEvictionsTotal.WithLabelValues(c.name).Inc()
	}
}
