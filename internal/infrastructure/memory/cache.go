package memory

import (
	"context"
	"sync"
	"time"
)

type item struct {
	value   []byte
	expires time.Time
}

// Cache is an in-process ports.Cache with TTL support.
// It is only safe for single-process deployments.
type Cache struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

func NewCache() *Cache {
	return &Cache{items: make(map[string]item), now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if c.expired(it) {
		delete(c.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), it.value...), true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
	return nil
}

func (c *Cache) setLocked(key string, value []byte, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.items[key] = item{value: append([]byte(nil), value...), expires: exp}
}

// Update runs fn and the write under the cache lock, so it never conflicts.
func (c *Cache) Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte, ok bool) ([]byte, error)) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	var current []byte
	it, ok := c.items[key]
	if ok && c.expired(it) {
		delete(c.items, key)
		ok = false
	}
	if ok {
		current = append([]byte(nil), it.value...)
	}
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	c.setLocked(key, next, ttl)
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, it := range c.items {
		if c.expired(it) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache) expired(it item) bool {
	return !it.expires.IsZero() && !c.now().Before(it.expires)
}
