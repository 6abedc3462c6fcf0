package entitycache

import (
	"context"
	"sync"
	"time"

	"github.com/harborpoint/policykit/clock"
	"github.com/harborpoint/policykit/entity"
	"github.com/harborpoint/policykit/observe"
)

// Entry is one cached entity together with its freshness window.
type Entry struct {
	Data      entity.Entity
	FetchedAt time.Time
	TTL       time.Duration
	ExpiresAt time.Time
}

// Fresh reports whether the entry is within its TTL at the given instant.
// Expiry never removes an entry; a stale entry stays readable until it is
// overwritten, invalidated, or evicted.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Subscriber observes cache changes. removed is true for invalidations,
// evictions, and Clear.
type Subscriber func(key entity.Key, entry Entry, removed bool)

// Config configures the Cache.
type Config struct {
	// MaxEntries caps the number of cached entities. Default: 500
	MaxEntries int

	// DefaultTTL applies when Put is called with a non-positive TTL.
	// Default: 60s
	DefaultTTL time.Duration

	// EvictExempt reports keys that must never be evicted, typically keys
	// with an in-flight mutation whose cached entry backs the rollback
	// snapshot. Exempt entries can push the cache past MaxEntries.
	EvictExempt func(entity.Key) bool

	// Clock is the time source. Default: clock.Real().
	Clock clock.Clock

	// Logger receives cache events. Default: observe.NopLogger().
	Logger observe.Logger

	// Metrics receives hit/miss/eviction counts. Default: observe.NopMetrics().
	Metrics observe.Metrics
}

// Cache is a TTL map of server entities keyed by (type, id). All methods are
// safe for concurrent use.
type Cache struct {
	config Config

	mu      sync.Mutex
	entries map[entity.Key]Entry
	subs    map[int]Subscriber
	nextSub int

	logger  observe.Logger
	metrics observe.Metrics
	clock   clock.Clock
}

// notice is a subscriber notification captured under the lock and delivered
// after it is released.
type notice struct {
	key     entity.Key
	entry   Entry
	removed bool
}

// New creates a new Cache.
func New(config Config) *Cache {
	// Apply defaults
	if config.MaxEntries <= 0 {
		config.MaxEntries = 500
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 60 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Metrics == nil {
		config.Metrics = observe.NopMetrics()
	}

	return &Cache{
		config:  config,
		entries: make(map[entity.Key]Entry),
		subs:    make(map[int]Subscriber),
		logger:  config.Logger.WithComponent("cache"),
		metrics: config.Metrics,
		clock:   config.Clock,
	}
}

// Get returns the entry for the key, fresh or stale. The second return is
// false only when the key is absent entirely.
func (c *Cache) Get(key entity.Key) (Entry, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	switch {
	case !ok:
		c.metrics.RecordCacheEvent(context.Background(), observe.CacheMiss, key.Type.String())
	case entry.Fresh(c.clock.Now()):
		c.metrics.RecordCacheEvent(context.Background(), observe.CacheHit, key.Type.String())
	default:
		c.metrics.RecordCacheEvent(context.Background(), observe.CacheStaleHit, key.Type.String())
	}

	return entry, ok
}

// Put stores an entity with the given TTL, evicting the oldest non-exempt
// entry when the cache is at capacity.
func (c *Cache) Put(key entity.Key, data entity.Entity, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	now := c.clock.Now()
	c.Restore(key, Entry{
		Data:      data,
		FetchedAt: now,
		TTL:       ttl,
		ExpiresAt: now.Add(ttl),
	})
}

// Restore stores a previously captured entry verbatim, keeping its original
// freshness window. Used by rollback so a reverted entity does not appear
// freshly fetched.
func (c *Cache) Restore(key entity.Key, entry Entry) {
	c.mu.Lock()

	var notices []notice
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.config.MaxEntries {
		if victim, ok := c.oldestEvictableLocked(); ok {
			evicted := c.entries[victim]
			delete(c.entries, victim)
			notices = append(notices, notice{key: victim, entry: evicted, removed: true})
			c.metrics.RecordCacheEvent(context.Background(), observe.CacheEviction, victim.Type.String())
		}
	}

	c.entries[key] = entry
	notices = append(notices, notice{key: key, entry: entry})
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.deliver(subs, notices)
}

// oldestEvictableLocked picks the entry with the oldest FetchedAt among keys
// the EvictExempt hook does not protect. Caller must hold c.mu.
func (c *Cache) oldestEvictableLocked() (entity.Key, bool) {
	var victim entity.Key
	var oldest time.Time
	found := false

	for key, entry := range c.entries {
		if c.config.EvictExempt != nil && c.config.EvictExempt(key) {
			continue
		}
		if !found || entry.FetchedAt.Before(oldest) {
			victim = key
			oldest = entry.FetchedAt
			found = true
		}
	}
	return victim, found
}

// Invalidate removes the entry for the key, if present.
func (c *Cache) Invalidate(key entity.Key) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	if ok {
		c.deliver(subs, []notice{{key: key, entry: entry, removed: true}})
	}
}

// InvalidateType removes every entry of the given type. Used after a
// mutation settles to drop derived lists and snapshots that may now be
// inconsistent.
func (c *Cache) InvalidateType(t entity.Type) {
	c.mu.Lock()
	var notices []notice
	for key, entry := range c.entries {
		if key.Type == t {
			delete(c.entries, key)
			notices = append(notices, notice{key: key, entry: entry, removed: true})
		}
	}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.deliver(subs, notices)
}

// Clear removes everything. Used on logout and permission changes.
func (c *Cache) Clear() {
	c.mu.Lock()
	notices := make([]notice, 0, len(c.entries))
	for key, entry := range c.entries {
		notices = append(notices, notice{key: key, entry: entry, removed: true})
	}
	c.entries = make(map[entity.Key]Entry)
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.deliver(subs, notices)
}

// Len returns the number of cached entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Subscribe registers a change listener and returns its cancel function.
// Listeners are invoked outside the cache lock.
func (c *Cache) Subscribe(sub Subscriber) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Cache) subscribersLocked() []Subscriber {
	subs := make([]Subscriber, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (c *Cache) deliver(subs []Subscriber, notices []notice) {
	for _, n := range notices {
		for _, sub := range subs {
			sub(n.key, n.entry, n.removed)
		}
	}
}
