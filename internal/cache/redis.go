package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"neurogallery/server/internal/config"
)

// RedisCache stores entries in redis, one key per namespace/key pair. The
// entry envelope carries its own timestamp so expiry follows the same lazy
// read-time rule as the memory backend; the redis key TTL is set as well so
// abandoned entries eventually disappear on their own.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing client. Used by tests.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(namespace, key string) string {
	return fmt.Sprintf("cache:%s:%s", namespace, key)
}

func (c *RedisCache) Get(ctx context.Context, namespace, key string, out interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, redisKey(namespace, key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Unreadable envelope, drop it and report a miss
		_ = c.client.Del(ctx, redisKey(namespace, key)).Err()
		return false, nil
	}

	if entry.Expired(time.Now()) {
		_ = c.client.Del(ctx, redisKey(namespace, key)).Err()
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration, version string) error {
	entry, err := encodeEntry(value, ttl, version)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	return c.client.Set(ctx, redisKey(namespace, key), data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, namespace, key string) error {
	return c.client.Del(ctx, redisKey(namespace, key)).Err()
}

func (c *RedisCache) Clear(ctx context.Context, namespace string) error {
	keys, err := c.client.Keys(ctx, fmt.Sprintf("cache:%s:*", namespace)).Result()
	if err != nil {
		return fmt.Errorf("failed to list cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
