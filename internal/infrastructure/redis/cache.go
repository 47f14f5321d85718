package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goldkiwi/storefront/internal/core/ports"
)

// Cache implements ports.Cache on Redis. Flow documents live here when the
// server runs with more than one replica.
type Cache struct {
	r      redis.UniversalClient
	prefix string
}

var _ ports.Cache = (*Cache)(nil)

// NewCache creates a Redis-backed cache; keys are stored as prefix:key.
func NewCache(r redis.UniversalClient, prefix string) *Cache {
	return &Cache{r: r, prefix: prefix}
}

func (c *Cache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.r.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value; a non-positive ttl keeps the key until deleted.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.r.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Update is an optimistic WATCH/MULTI transaction on key. A write by another
// client after the read aborts it with ports.ErrCacheConflict.
func (c *Cache) Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte, ok bool) ([]byte, error)) error {
	if ttl < 0 {
		ttl = 0
	}
	k := c.key(key)
	err := c.r.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		ok := true
		if err == redis.Nil {
			current, ok = nil, false
		} else if err != nil {
			return fmt.Errorf("redis get %s: %w", key, err)
		}
		next, err := fn(current, ok)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, ttl)
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return ports.ErrCacheConflict
	}
	return err
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.r.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
