// Package cache memoizes expensive string-keyed lookups such as query embeddings: an LRU of loaded
// values in front of singleflight, so concurrent misses for one key share a single load.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoaderCache loads values on miss through a callback. Safe for concurrent use.
type LoaderCache[V any] struct {
	lru   *lru.Cache[string, V]
	group singleflight.Group
}

// NewLoaderCache creates a cache holding at most maxEntries values.
func NewLoaderCache[V any](maxEntries int) (*LoaderCache[V], error) {
	store, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	return &LoaderCache[V]{lru: store}, nil
}

// Get returns the value for key, calling load on a miss. hit reports whether the value came from
// the cache. Failed loads are not cached. Only one load per key runs at a time. The load runs on
// ctx without its cancellation, so load must bound itself; a caller whose ctx ends returns
// ctx.Err() while the load continues for the other waiters.
func (c *LoaderCache[V]) Get(ctx context.Context, key string, load func(context.Context, string) (V, error)) (V, bool, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, true, nil
	}

	loadCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key, func() (any, error) {
		v, err := load(loadCtx, key)
		if err != nil {
			return nil, err
		}

		c.lru.Add(key, v)

		return v, nil
	})

	var zero V

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err() //nolint:wrapcheck // callers match context errors directly
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}

		v, _ := res.Val.(V)

		return v, false, nil
	}
}

// Len returns the number of cached values.
func (c *LoaderCache[V]) Len() int {
	return c.lru.Len()
}
