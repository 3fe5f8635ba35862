package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "weather:"

// memcached rejects keys longer than this.
const maxMemcachedKeyLen = 250

// NewMemcachedClient creates a client for addrs, a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns use package defaults if zero.
func NewMemcachedClient(addrs string, timeout time.Duration, maxIdleConns int) *memcache.Client {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return client
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// MemcachedCache implements Cache over a shared memcached client. Values are
// stored as JSON. Capacity is left to the memcached server.
type MemcachedCache[V any] struct {
	client *memcache.Client
	ttl    time.Duration
}

// NewMemcachedCache creates a store whose entries expire after ttl.
func NewMemcachedCache[V any](client *memcache.Client, ttl time.Duration) *MemcachedCache[V] {
	return &MemcachedCache[V]{client: client, ttl: ttl}
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if ctx.Err() != nil {
		return zero, false, ctx.Err()
	}
	item, err := c.client.Get(remoteKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var v V
	if err := json.Unmarshal(item.Value, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache[V]) Set(ctx context.Context, key string, value V) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expSec := int32(c.ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	return c.client.Set(&memcache.Item{
		Key:        remoteKey(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// remoteKey makes key safe for memcached (no spaces or control characters,
// bounded length). Redis keys use the same mapping.
func remoteKey(key string) string {
	k := keyPrefix + url.QueryEscape(key)
	if len(k) <= maxMemcachedKeyLen {
		return k
	}
	sum := sha256.Sum256([]byte(key))
	return keyPrefix + "h:" + hex.EncodeToString(sum[:])
}
