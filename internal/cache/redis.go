package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a client for addr ("host:port").
func NewRedisClient(addr, password string, db int, timeout time.Duration) *redis.Client {
	if addr == "" {
		addr = "localhost:6379"
	}
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return redis.NewClient(opts)
}

// RedisCache implements Cache over a shared redis client with JSON values.
type RedisCache[V any] struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a store whose entries expire after ttl.
func NewRedisCache[V any](client *redis.Client, ttl time.Duration) *RedisCache[V] {
	return &RedisCache[V]{client: client, ttl: ttl}
}

// Get implements Cache.Get.
func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	raw, err := c.client.Get(ctx, remoteKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set implements Cache.Set.
func (c *RedisCache[V]) Set(ctx context.Context, key string, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ttl := c.ttl
	if ttl <= 0 {
		ttl = time.Hour
	}
	return c.client.Set(ctx, remoteKey(key), raw, ttl).Err()
}
