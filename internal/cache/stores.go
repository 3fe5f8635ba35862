package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

// Backend names accepted by NewStores.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Stores groups the three independently configured stores.
type Stores struct {
	Current    Cache[models.NormalizedCurrent]
	Forecast   Cache[models.Forecast]
	Historical Cache[models.NormalizedHistorical]
}

// StoresConfig configures NewStores.
type StoresConfig struct {
	Backend    string
	Current    Settings
	Forecast   Settings
	Historical Settings

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration
}

// Remote is the shared connection behind remote stores. Ping backs health
// checks; Close is called once at shutdown.
type Remote interface {
	Ping(ctx context.Context) error
	Close() error
}

// NewLRUStores builds in-memory stores with per-kind capacity and TTL.
func NewLRUStores(cfg StoresConfig) Stores {
	return Stores{
		Current:    NewLRUCache[models.NormalizedCurrent](cfg.Current),
		Forecast:   NewLRUCache[models.Forecast](cfg.Forecast),
		Historical: NewLRUCache[models.NormalizedHistorical](cfg.Historical),
	}
}

// NewStores builds stores for cfg.Backend. Remote is nil for the in-memory backend.
func NewStores(cfg StoresConfig) (Stores, Remote, error) {
	switch cfg.Backend {
	case "", BackendInMemory:
		return NewLRUStores(cfg), nil, nil
	case BackendMemcached:
		client := NewMemcachedClient(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		return Stores{
			Current:    NewMemcachedCache[models.NormalizedCurrent](client, cfg.Current.TTL),
			Forecast:   NewMemcachedCache[models.Forecast](client, cfg.Forecast.TTL),
			Historical: NewMemcachedCache[models.NormalizedHistorical](client, cfg.Historical.TTL),
		}, memcachedRemote{client}, nil
	case BackendRedis:
		client := NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
		return Stores{
			Current:    NewRedisCache[models.NormalizedCurrent](client, cfg.Current.TTL),
			Forecast:   NewRedisCache[models.Forecast](client, cfg.Forecast.TTL),
			Historical: NewRedisCache[models.NormalizedHistorical](client, cfg.Historical.TTL),
		}, redisRemote{client}, nil
	default:
		return Stores{}, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

type memcachedRemote struct{ client *memcache.Client }

func (r memcachedRemote) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.client.Ping()
}

func (r memcachedRemote) Close() error { return r.client.Close() }

type redisRemote struct{ client *redis.Client }

func (r redisRemote) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r redisRemote) Close() error { return r.client.Close() }
