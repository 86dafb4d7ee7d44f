// Package cache is a two level JSON cache: an in-process go-cache in front of Redis.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Tiered caches JSON documents locally and, when a client is configured, in Redis.
// Values are kept as encoded bytes so callers never share decoded structs.
type Tiered struct {
	local  *gocache.Cache
	redis  *redis.Client
	prefix string
}

// NewTiered creates a cache. rdb may be nil, in which case only the local tier is used.
func NewTiered(rdb *redis.Client, localTTL time.Duration) *Tiered {
	if localTTL <= 0 {
		localTTL = time.Minute
	}
	return &Tiered{
		local:  gocache.New(localTTL, 2*localTTL),
		redis:  rdb,
		prefix: "inboxt:",
	}
}

// GetJSON decodes the cached value for key into dest. The bool reports a hit.
func (c *Tiered) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if raw, ok := c.local.Get(key); ok {
		return true, json.Unmarshal(raw.([]byte), dest)
	}
	if c.redis == nil {
		return false, nil
	}

	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	c.local.SetDefault(key, data)
	return true, nil
}

// SetJSON stores value in both tiers. ttl bounds the Redis entry; the local tier
// uses its own shorter default expiry.
func (c *Tiered) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.local.SetDefault(key, data)
	if c.redis == nil {
		return nil
	}
	return c.redis.Set(ctx, c.prefix+key, data, ttl).Err()
}

// Delete removes key from both tiers.
func (c *Tiered) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		c.local.Delete(k)
		full[i] = c.prefix + k
	}
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, full...).Err()
}
