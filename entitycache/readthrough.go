package entitycache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/harborpoint/policykit/entity"
	"github.com/harborpoint/policykit/observe"
)

// Fetcher loads the canonical entity from the server.
type Fetcher func(ctx context.Context) (entity.Entity, error)

// ReadThrough layers stale-while-revalidate fetch orchestration over a
// Cache. At most one fetch per key is in flight at a time; this is distinct
// from transport-level deduplication, which collapses identical HTTP
// requests regardless of entity.
type ReadThrough struct {
	cache  *Cache
	flight singleflight.Group
	logger observe.Logger
}

// NewReadThrough creates a read-through view of the cache.
func NewReadThrough(cache *Cache) *ReadThrough {
	return &ReadThrough{
		cache:  cache,
		logger: cache.logger,
	}
}

// Get returns the entity for the key.
//
// Fresh cache entry: returned as-is. Stale entry: returned immediately while
// a background refresh re-fetches; a refresh failure is logged and leaves
// the stale entry readable. Absent: the caller waits for the fetch.
func (r *ReadThrough) Get(ctx context.Context, key entity.Key, ttl time.Duration, fetch Fetcher) (entity.Entity, error) {
	entry, ok := r.cache.Get(key)
	if ok {
		if entry.Fresh(r.cache.clock.Now()) {
			return entry.Data, nil
		}
		go r.refresh(context.WithoutCancel(ctx), key, ttl, fetch)
		return entry.Data, nil
	}

	v, err, _ := r.flight.Do(key.String(), func() (any, error) {
		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		r.cache.Put(key, data, ttl)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(entity.Entity), nil
}

// refresh re-fetches a stale entry. Concurrent refreshes of the same key
// collapse into one fetch.
func (r *ReadThrough) refresh(ctx context.Context, key entity.Key, ttl time.Duration, fetch Fetcher) {
	_, _, _ = r.flight.Do(key.String(), func() (any, error) {
		data, err := fetch(ctx)
		if err != nil {
			r.logger.Warn(ctx, "background refresh failed",
				observe.Field{Key: "key", Value: key.String()},
				observe.Field{Key: "error", Value: err.Error()},
			)
			return nil, err
		}
		r.cache.Put(key, data, ttl)
		r.cache.metrics.RecordCacheEvent(ctx, observe.CacheRefresh, key.Type.String())
		return data, nil
	})
}
