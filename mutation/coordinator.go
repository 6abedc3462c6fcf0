package mutation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harborpoint/policykit/clock"
	"github.com/harborpoint/policykit/entity"
	"github.com/harborpoint/policykit/entitycache"
	"github.com/harborpoint/policykit/lifecycle"
	"github.com/harborpoint/policykit/observe"
)

// ErrNilPatch is returned when a mutation produces no entity to write.
var ErrNilPatch = errors.New("mutation: patch produced no entity")

// Patch derives the optimistic entity from the current cached one. For
// Create mutations current is nil. Patches must be pure: no I/O, no
// mutation of the input.
type Patch func(current entity.Entity) entity.Entity

// Committer submits the mutation to the server and returns the canonical
// entity from the response.
type Committer func(ctx context.Context) (entity.Entity, error)

// SettleListener is notified after an op leaves the InFlight state, whatever
// the outcome. The reconciler registers here to replay deferred pushes.
type SettleListener func(key entity.Key)

// Config configures the Coordinator.
type Config struct {
	// Cache is the entity cache optimistic and canonical writes land in.
	Cache *entitycache.Cache

	// Pending tracks in-flight ops. A fresh set is created when nil; pass a
	// shared one so the cache eviction exemption sees the same ops.
	Pending *PendingSet

	// TTL applies to optimistic and canonical cache writes. Default: 60s
	TTL time.Duration

	// Logger receives mutation lifecycle events. Default: observe.NopLogger().
	Logger observe.Logger

	// Metrics receives commit/rollback counts. Default: observe.NopMetrics().
	Metrics observe.Metrics

	// Clock is the time source. Default: clock.Real().
	Clock clock.Clock
}

// Coordinator runs optimistic mutations: write the expected outcome to the
// cache immediately, submit to the server, then either confirm with the
// canonical response or roll back to the pre-mutation snapshot.
type Coordinator struct {
	cache   *entitycache.Cache
	pending *PendingSet
	ttl     time.Duration

	mu        sync.Mutex
	listeners []SettleListener

	logger  observe.Logger
	metrics observe.Metrics
	clock   clock.Clock
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(config Config) (*Coordinator, error) {
	if config.Cache == nil {
		return nil, errors.New("mutation: cache is required")
	}

	// Apply defaults
	if config.TTL <= 0 {
		config.TTL = 60 * time.Second
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Metrics == nil {
		config.Metrics = observe.NopMetrics()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Pending == nil {
		config.Pending = NewPendingSet(config.Clock)
	}

	return &Coordinator{
		cache:   config.Cache,
		pending: config.Pending,
		ttl:     config.TTL,
		logger:  config.Logger.WithComponent("mutation"),
		metrics: config.Metrics,
		clock:   config.Clock,
	}, nil
}

// Pending exposes the coordinator's pending set.
func (c *Coordinator) Pending() *PendingSet { return c.pending }

// AddSettleListener registers a listener invoked after every settle.
func (c *Coordinator) AddSettleListener(fn SettleListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Mutate runs one optimistic mutation against the key.
//
// Order of operations: reject a concurrent mutation, validate Transition
// patches against the lifecycle table (local, before any network call),
// write the patched entity optimistically, then run the committer. Success
// replaces the optimistic entry with the canonical server entity; failure
// restores the snapshot and returns the committer's error untouched.
func (c *Coordinator) Mutate(ctx context.Context, key entity.Key, kind Kind, patch Patch, commit Committer) (entity.Entity, error) {
	snapshot, had := c.cache.Get(key)

	op, err := c.pending.Begin(key, kind, snapshot, had)
	if err != nil {
		return nil, err
	}

	var current entity.Entity
	if had {
		current = snapshot.Data
	}
	optimistic := patch(current)
	if optimistic == nil {
		c.pending.Abort(op)
		return nil, ErrNilPatch
	}

	if kind == Transition && had {
		if err := c.validateTransition(key, snapshot.Data, optimistic); err != nil {
			// Rejected before any cache write; nothing to roll back.
			c.pending.Abort(op)
			c.notifySettled(key)
			return nil, err
		}
	}

	start := c.clock.Now()
	c.cache.Put(key, optimistic, c.ttl)

	c.logger.Debug(ctx, "mutation started",
		observe.Field{Key: "op_id", Value: op.ID},
		observe.Field{Key: "key", Value: key.String()},
		observe.Field{Key: "kind", Value: kind.String()},
	)

	canonical, err := commit(ctx)
	elapsed := c.clock.Now().Sub(start)

	if err != nil {
		if c.pending.Settle(op, RolledBack) {
			if op.HadSnapshot {
				c.cache.Restore(key, op.Snapshot)
			} else {
				c.cache.Invalidate(key)
			}
		}
		c.metrics.RecordMutation(ctx, kind.String(), false, elapsed)
		c.logger.Warn(ctx, "mutation rolled back",
			observe.Field{Key: "op_id", Value: op.ID},
			observe.Field{Key: "key", Value: key.String()},
			observe.Field{Key: "error", Value: err.Error()},
		)
		c.notifySettled(key)
		return nil, err
	}

	if canonical == nil {
		canonical = optimistic
	}

	if !c.pending.Settle(op, Committed) {
		// The op left InFlight before this result arrived (session reset or
		// a raced rollback). A late success must not resurrect the patch;
		// push reconciliation restores server truth.
		c.logger.Info(ctx, "discarding late mutation result",
			observe.Field{Key: "op_id", Value: op.ID},
			observe.Field{Key: "key", Value: key.String()},
		)
		return canonical, nil
	}

	c.cache.Put(key, canonical, c.ttl)
	c.metrics.RecordMutation(ctx, kind.String(), true, elapsed)
	c.logger.Debug(ctx, "mutation committed",
		observe.Field{Key: "op_id", Value: op.ID},
		observe.Field{Key: "key", Value: key.String()},
		observe.Field{Key: "duration_ms", Value: elapsed.Milliseconds()},
	)
	c.notifySettled(key)
	return canonical, nil
}

// validateTransition checks the patched status against the lifecycle table.
// Patches that leave the status untouched are field updates in disguise and
// pass through.
func (c *Coordinator) validateTransition(key entity.Key, before, after entity.Entity) error {
	from, okFrom := statusOf(before)
	to, okTo := statusOf(after)
	if !okFrom || !okTo || from == to {
		return nil
	}
	return lifecycle.Check(key.Type, from, to)
}

// statusOf extracts the lifecycle status string from a typed entity.
func statusOf(e entity.Entity) (string, bool) {
	switch v := e.(type) {
	case entity.Policy:
		return string(v.Status), true
	case entity.RiskAssessment:
		return string(v.Status), true
	case entity.Claim:
		return string(v.Status), true
	default:
		return "", false
	}
}

func (c *Coordinator) notifySettled(key entity.Key) {
	c.mu.Lock()
	listeners := make([]SettleListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(key)
	}
}
