package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harborpoint/policykit/entity"
	"github.com/harborpoint/policykit/entitycache"
	"github.com/harborpoint/policykit/mutation"
	"github.com/harborpoint/policykit/observe"
)

// ErrKeyMismatch is returned when a push payload's id disagrees with the
// message envelope.
var ErrKeyMismatch = errors.New("reconcile: payload id does not match message id")

// Message is one push frame from the server-side event stream.
type Message struct {
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Payload    json.RawMessage `json:"payload"`
}

// Config configures the Reconciler.
type Config struct {
	// Cache receives reconciled server state.
	Cache *entitycache.Cache

	// Pending is consulted to defer pushes for keys with an in-flight
	// mutation. Must be the same set the coordinator uses.
	Pending *mutation.PendingSet

	// PushTTL is the freshness window for entries written from push
	// messages. Default: 300s
	PushTTL time.Duration

	// Logger receives reconciliation events. Default: observe.NopLogger().
	Logger observe.Logger
}

// Reconciler folds server push messages into the cache. Pushes for an entity
// with an in-flight mutation are held in a single-slot buffer per key, newest
// wins, and applied once the mutation settles. The optimistic UI state is
// never overwritten mid-mutation.
type Reconciler struct {
	cache   *entitycache.Cache
	pending *mutation.PendingSet
	pushTTL time.Duration

	mu       sync.Mutex
	deferred map[entity.Key]entity.Entity

	logger observe.Logger
}

// New creates a new Reconciler.
func New(config Config) (*Reconciler, error) {
	if config.Cache == nil {
		return nil, errors.New("reconcile: cache is required")
	}
	if config.Pending == nil {
		return nil, errors.New("reconcile: pending set is required")
	}

	// Apply defaults
	if config.PushTTL <= 0 {
		config.PushTTL = 300 * time.Second
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}

	return &Reconciler{
		cache:    config.Cache,
		pending:  config.Pending,
		pushTTL:  config.PushTTL,
		deferred: make(map[entity.Key]entity.Entity),
		logger:   config.Logger.WithComponent("reconcile"),
	}, nil
}

// OnPushMessage decodes and applies one push frame. Unknown entity types and
// malformed payloads are rejected with an error; the caller decides whether
// to log and continue.
func (r *Reconciler) OnPushMessage(msg Message) error {
	t, err := entity.ParseType(msg.EntityType)
	if err != nil {
		return err
	}

	data, err := entity.Decode(t, msg.Payload)
	if err != nil {
		return err
	}

	if msg.EntityID != "" && data.EntityKey().ID != msg.EntityID {
		return fmt.Errorf("%w: envelope %q, payload %q", ErrKeyMismatch, msg.EntityID, data.EntityKey().ID)
	}

	r.Apply(data.EntityKey(), data)
	return nil
}

// Apply folds an already-decoded entity into the cache, deferring when the
// key has an in-flight mutation. Keys never seen before are inserted fresh;
// a push can legitimately arrive ahead of the first fetch.
func (r *Reconciler) Apply(key entity.Key, data entity.Entity) {
	if r.pending.InFlight(key) {
		r.mu.Lock()
		r.deferred[key] = data
		r.mu.Unlock()

		r.logger.Debug(context.Background(), "push deferred during in-flight mutation",
			observe.Field{Key: "key", Value: key.String()},
		)
		return
	}

	r.cache.Put(key, data, r.pushTTL)
}

// OnSettled replays the deferred push for the key, if any. Registered as the
// mutation coordinator's settle listener. The deferred server state lands on
// top of whatever the settle wrote (canonical entity or restored snapshot),
// since the push is the newer server truth.
func (r *Reconciler) OnSettled(key entity.Key) {
	r.mu.Lock()
	data, ok := r.deferred[key]
	if ok {
		delete(r.deferred, key)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	// Re-enters Apply: if another mutation began in the meantime the push
	// is deferred again rather than lost.
	r.Apply(key, data)
}

// DeferredLen returns the number of keys with a buffered push.
func (r *Reconciler) DeferredLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deferred)
}

// Clear drops all deferred pushes. Used on logout alongside cache and
// pending-set clears.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deferred = make(map[entity.Key]entity.Entity)
}
