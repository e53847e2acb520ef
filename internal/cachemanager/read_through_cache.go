package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache pairs a CacheManager with a loader. Get serves hits from
// the cache and fills misses by invoking the loader, so callers never touch
// the cache directly.
type ReadThroughCache[K comparable, V any] struct {
	cache CacheManager[K, V]
	load  func(ctx context.Context, key K) (V, error)
	ttl   time.Duration
}

// NewReadThroughCache wraps a cache and a loader. Values loaded on a miss are
// stored with the given ttl.
func NewReadThroughCache[K comparable, V any](
	cache CacheManager[K, V],
	ttl time.Duration,
	load func(ctx context.Context, key K) (V, error),
) *ReadThroughCache[K, V] {
	return &ReadThroughCache[K, V]{cache: cache, load: load, ttl: ttl}
}

// Get returns the cached value for key, loading and storing it on a miss.
// A loader error is returned unchanged and nothing is cached.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.load(ctx, key)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, r.ttl)

	return value, nil
}

// Flush drops every cached value. Loaders run again on the next Get.
func (r *ReadThroughCache[K, V]) Flush(ctx context.Context) error {
	return r.cache.Flush(ctx)
}
