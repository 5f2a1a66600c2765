package gormstore

import (
	"context"
	"sync"
	"time"

	"github.com/go-gorm/caches/v4"
)

// memoryCacher is a small TTL'd in-process implementation of
// caches.Cacher. Once installed, the caches plugin stores the results of
// every read query the Store issues (the dialable-lead query
// FetchCandidates included) for the TTL, without a Redis round-trip; the
// presence cache (store/cache) is the one place this repo reaches for Redis.
type memoryCacher struct {
	mu  sync.Mutex
	ttl time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   *caches.Query[any]
	expires time.Time
}

// NewMemoryCacher builds a Cacher with a fixed TTL for every stored entry.
func NewMemoryCacher(ttl time.Duration) caches.Cacher {
	return &memoryCacher{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *memoryCacher) Get(ctx context.Context, key string, q *caches.Query[any]) (*caches.Query[any], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expires) {
		delete(c.entries, key)
		return nil, nil
	}
	return entry.value, nil
}

func (c *memoryCacher) Store(ctx context.Context, key string, val *caches.Query[any]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: val, expires: time.Now().Add(c.ttl)}
	return nil
}
