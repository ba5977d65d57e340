package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisResultCache persists memoized analytics results in Redis, namespaced
// under keyPrefix, with a server-side TTL matching ClampResultCacheTTL.
type RedisResultCache struct {
	rdb       *redis.Client
	keyPrefix string
}

var _ ResultCache = (*RedisResultCache)(nil)

// NewRedisResultCache wraps an existing Redis client.
func NewRedisResultCache(rdb *redis.Client, keyPrefix string) *RedisResultCache {
	if keyPrefix == "" {
		keyPrefix = "toolrt:result"
	}
	return &RedisResultCache{rdb: rdb, keyPrefix: keyPrefix}
}

func (c *RedisResultCache) fullKey(key string) string {
	return fmt.Sprintf("%s:%s", c.keyPrefix, key)
}

func (c *RedisResultCache) Get(ctx context.Context, key string) (CachedResult, bool, error) {
	payload, err := c.rdb.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return CachedResult{}, false, nil
	}
	if err != nil {
		return CachedResult{}, false, fmt.Errorf("get cached result %q: %w", key, err)
	}
	var result CachedResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return CachedResult{}, false, fmt.Errorf("unmarshal cached result %q: %w", key, err)
	}
	return result, true, nil
}

func (c *RedisResultCache) Put(ctx context.Context, key string, result CachedResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal cached result %q: %w", key, err)
	}
	if err := c.rdb.Set(ctx, c.fullKey(key), payload, ClampResultCacheTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("set cached result %q: %w", key, err)
	}
	return nil
}
