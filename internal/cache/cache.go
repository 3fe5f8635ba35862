// Package cache holds the bounded, time-expiring stores used by the aggregator.
// Invalidation is exclusively time-based; there is no delete operation.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a key/value store with a per-store TTL.
// Get returns (value, true, nil) only for a present, unexpired entry; an
// expired entry is reported exactly like an absent one.
// Set inserts or replaces and resets the entry's age.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V) error
}

// Settings bounds a single store.
type Settings struct {
	TTL        time.Duration
	MaxEntries int
}

// LRUCache is an in-process Cache with least-recently-used eviction at
// capacity. Safe for concurrent use.
type LRUCache[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewLRUCache creates an in-memory store holding at most s.MaxEntries entries,
// each living s.TTL after its last Set.
func NewLRUCache[V any](s Settings) *LRUCache[V] {
	size := s.MaxEntries
	if size <= 0 {
		size = 1
	}
	return &LRUCache[V]{lru: expirable.NewLRU[string, V](size, nil, s.TTL)}
}

// Get returns the live entry for key. A hit refreshes the entry's recency
// but not its age.
func (c *LRUCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

// Set stores value, evicting the least recently used entry when full.
func (c *LRUCache[V]) Set(ctx context.Context, key string, value V) error {
	c.lru.Add(key, value)
	return nil
}

// Len reports the number of entries, including any expired but not yet purged.
func (c *LRUCache[V]) Len() int {
	return c.lru.Len()
}
