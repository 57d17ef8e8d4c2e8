// Package memory implements the cache.Cache interface on process-local
// maps. Values and counters live in separate keyspaces with independent
// TTLs; an optional background sweeper reclaims expired entries.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ideaforge/ideaforge-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(config map[string]any) cache.Cache {
		return New(
			seconds(config, "default_ttl_seconds", 15*time.Minute),
			seconds(config, "cleanup_interval_seconds", 5*time.Minute),
		)
	})
}

// seconds reads an integer seconds value from driver config, tolerating
// the numeric types toml and json decoding produce.
func seconds(config map[string]any, key string, fallback time.Duration) time.Duration {
	v, ok := config[key]
	if !ok {
		return fallback
	}
	var secs int
	switch n := v.(type) {
	case int:
		secs = n
	case int64:
		secs = int(n)
	case float64:
		secs = int(n)
	default:
		return fallback
	}
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

type counter struct {
	value     int64
	expiresAt time.Time
}

// Cache is the in-memory driver. Reads hand out copies so callers
// cannot mutate stored bytes behind the lock.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	counters   map[string]*counter
	defaultTTL time.Duration
	done       chan struct{}
}

// New creates a memory cache. A cleanupInterval of 0 disables the
// sweeper; expired entries are then only rejected on read.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		entries:    make(map[string]*entry),
		counters:   make(map[string]*counter),
		defaultTTL: defaultTTL,
		done:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.sweep(cleanupInterval)
	}
	return c
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.dropExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) dropExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	for k, ct := range c.counters {
		if now.After(ct.expiresAt) {
			delete(c.counters, k)
		}
	}
}

// Get returns a copy of the stored value. Expired entries surface as
// cache.ErrExpired until the sweeper collects them.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if time.Now().After(e.expiresAt) {
		return nil, cache.ErrExpired
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value. A zero ttl means the cache default.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: stored, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a key. Missing keys are a no-op.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Exists reports whether the key holds a live value.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return !time.Now().After(e.expiresAt), nil
}

// Increment adds delta to the counter at key. An expired or missing
// counter restarts at delta with a fresh window; the window is not
// extended by later increments. Returns the new value and the window's
// reset time.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ct, ok := c.counters[key]
	if !ok || time.Now().After(ct.expiresAt) {
		expiresAt := time.Now().Add(ttl)
		c.counters[key] = &counter{value: delta, expiresAt: expiresAt}
		return delta, expiresAt, nil
	}

	ct.value += delta
	return ct.value, ct.expiresAt, nil
}

// GetCount returns the live counter value, zero when absent or expired.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ct, ok := c.counters[key]
	if !ok || time.Now().After(ct.expiresAt) {
		return 0, nil
	}
	return ct.value, nil
}

// Reset clears the counter at key.
func (c *Cache) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, key)
	return nil
}

// Close stops the sweeper.
func (c *Cache) Close() error {
	close(c.done)
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
