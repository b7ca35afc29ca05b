package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "meta:"

// RedisCache keeps resolved metadata in Redis with a fixed TTL.
type RedisCache struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Redis: client, TTL: ttl}
}

func (c *RedisCache) Get(ctx context.Context, rawURL string) (Metadata, bool, error) {
	raw, err := c.Redis.Get(ctx, cachePrefix+rawURL).Result()
	if errors.Is(err, redis.Nil) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, err
	}
	var md Metadata
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return Metadata{}, false, err
	}
	return md, true, nil
}

func (c *RedisCache) Set(ctx context.Context, rawURL string, md Metadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return err
	}
	return c.Redis.Set(ctx, cachePrefix+rawURL, string(data), c.TTL).Err()
}
