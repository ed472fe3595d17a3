// Package cache is a small Redis-backed read cache. Every entry carries its
// own expiry timestamp in addition to the store-side TTL, so staleness is an
// explicit property of the data rather than a side effect of eviction.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Cache wraps a Redis client with a key prefix and a fixed TTL. A nil Cache
// is valid and behaves as a permanent miss, so callers need no nil checks.
type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New builds a cache. Returns nil when no Redis client is available, which
// callers may use directly.
func New(rdb *redis.Client, prefix string, ttl time.Duration) *Cache {
	if rdb == nil {
		return nil
	}
	return &Cache{rdb: rdb, prefix: prefix + ":", ttl: ttl}
}

// Get loads a cached value into dest. The second return is true on a hit.
// Entries past their recorded expiry count as misses even if Redis still
// holds them.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}

	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("decode cache entry: %w", err)
	}
	if time.Now().After(env.ExpiresAt) {
		c.rdb.Del(ctx, c.prefix+key) // best effort
		return false, nil
	}
	if err := json.Unmarshal(env.Payload, dest); err != nil {
		return false, fmt.Errorf("decode cached payload: %w", err)
	}
	return true, nil
}

// Set stores a value under the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if c == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached payload: %w", err)
	}
	env, err := json.Marshal(envelope{Payload: payload, ExpiresAt: time.Now().Add(c.ttl)})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, env, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
