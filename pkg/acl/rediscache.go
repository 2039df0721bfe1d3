package acl

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCheckCache is a CheckCache shared across processes through Redis.
// Entries expire after the configured TTL; grant mutations delete the
// affected entries by prefix scan.
type RedisCheckCache struct {
	registry *Registry
	client   redis.Cmdable
	ttl      time.Duration
}

// NewRedisCheckCache creates a Redis-backed check cache. The registry
// drives invalidation the same way as the in-process cache: a mutation
// sweeps the target's entries and those of all descendant types.
func NewRedisCheckCache(registry *Registry, client redis.Cmdable, ttl time.Duration) *RedisCheckCache {
	return &RedisCheckCache{registry: registry, client: client, ttl: ttl}
}

func (c *RedisCheckCache) Get(ctx context.Context, key string) (bool, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		// Treat misses and transport errors alike: fall through to a real
		// check.
		return false, false
	}
	return value == "1", true
}

func (c *RedisCheckCache) Set(ctx context.Context, target ObjectRef, key string, allowed bool) {
	value := "0"
	if allowed {
		value = "1"
	}
	c.client.Set(ctx, key, value, c.ttl)
}

// GrantChanged deletes every cached outcome the mutation can have staled:
// the target's entries and those of all descendant types.
func (c *RedisCheckCache) GrantChanged(ctx context.Context, target ObjectRef) {
	for _, prefix := range invalidationPrefixes(c.registry, target) {
		c.deleteByPrefix(ctx, prefix)
	}
}

func (c *RedisCheckCache) deleteByPrefix(ctx context.Context, prefix string) {
	pattern := prefix + "*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			c.client.Del(ctx, keys...)
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}
