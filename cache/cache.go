// Package cache provides the TTL-bounded service-config cache the
// aggregating consumer's roster lookups consult before hitting the
// chain: operator rosters, stakes and aggregation policy all change
// rarely enough that re-reading them from the RPC endpoint on every
// call would be wasteful, but often enough that caching forever is
// wrong.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry holds one cached value alongside its expiry.
type entry struct {
	value   any
	expires time.Time
}

func (e entry) live(now time.Time) bool { return now.Before(e.expires) }

// Cache is a TTL cache keyed by string, with single-flight protected
// refresh: concurrent misses on the same key collapse into one loader
// call instead of stampeding the chain client.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry

	group singleflight.Group
}

// New builds a Cache with the given TTL. A zero TTL means entries never
// expire (used for values that are immutable once observed, e.g. a
// blueprint's bytecode hash).
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Get returns the cached value for key, if live.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !e.live(c.now()) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the cache's configured TTL.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

func (c *Cache) set(key string, value any) {
	expires := time.Time{}
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	} else {
		expires = c.now().Add(100 * 365 * 24 * time.Hour)
	}
	c.entries[key] = entry{value: value, expires: expires}
}

// GetOrLoad returns the cached value for key if live, otherwise calls
// load exactly once across all concurrent callers sharing that key and
// caches the result. A loader error is not cached and is returned to
// every waiting caller.
func (c *Cache) GetOrLoad(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	return v, err
}

// Invalidate removes key from the cache, forcing the next GetOrLoad to
// refresh it.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateService drops every cached key scoped to serviceID. Keys
// scoped to a service are expected to be built via ServiceKeyPrefix so the
// prefix match below is exact.
func (c *Cache) InvalidateService(serviceID uint64) {
	prefix := ServiceKeyPrefix(serviceID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of entries currently stored, live or expired;
// used by metrics and tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
