package mutation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harborpoint/policykit/clock"
	"github.com/harborpoint/policykit/entity"
	"github.com/harborpoint/policykit/entitycache"
)

// Kind classifies a mutation.
type Kind int

const (
	// Create introduces a new entity.
	Create Kind = iota
	// Update changes entity fields without a status change.
	Update
	// Transition moves an entity to a new lifecycle status.
	Transition
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Update:
		return "update"
	case Transition:
		return "transition"
	default:
		return "unknown"
	}
}

// Status is the settlement state of an operation.
type Status int

const (
	// InFlight means the server has not yet confirmed or rejected the op.
	InFlight Status = iota
	// Committed means the server accepted the mutation.
	Committed
	// RolledBack means the mutation failed and its optimistic write was
	// reverted.
	RolledBack
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case InFlight:
		return "in-flight"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// Op is one tracked optimistic mutation.
type Op struct {
	ID          string
	Key         entity.Key
	Kind        Kind
	SubmittedAt time.Time
	Status      Status

	// Snapshot is the cache entry captured before the optimistic write.
	// HadSnapshot is false when the entity was not cached, in which case
	// rollback removes the optimistic entry instead of restoring.
	Snapshot    entitycache.Entry
	HadSnapshot bool
}

// PendingSet tracks in-flight operations and enforces the single-writer
// invariant: at most one InFlight op per entity key.
type PendingSet struct {
	mu    sync.Mutex
	ops   map[entity.Key]*Op
	clock clock.Clock
}

// NewPendingSet creates an empty pending set.
func NewPendingSet(clk clock.Clock) *PendingSet {
	if clk == nil {
		clk = clock.Real()
	}
	return &PendingSet{
		ops:   make(map[entity.Key]*Op),
		clock: clk,
	}
}

// Begin registers a new InFlight op for the key. The check and the insert
// happen under one lock acquisition, so two racing mutations cannot both
// pass. Returns *ConcurrentMutationError when the key already has an
// in-flight op.
func (s *PendingSet) Begin(key entity.Key, kind Kind, snapshot entitycache.Entry, hadSnapshot bool) (*Op, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ops[key]; exists {
		return nil, &ConcurrentMutationError{Key: key}
	}

	op := &Op{
		ID:          uuid.NewString(),
		Key:         key,
		Kind:        kind,
		SubmittedAt: s.clock.Now(),
		Status:      InFlight,
		Snapshot:    snapshot,
		HadSnapshot: hadSnapshot,
	}
	s.ops[key] = op
	return op, nil
}

// Settle moves the op out of the set with the given terminal status.
// Reports false when the op is no longer the in-flight op for its key, in
// which case the caller must treat its result as stale and discard it.
func (s *PendingSet) Settle(op *Op, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.ops[op.Key]
	if !ok || current.ID != op.ID {
		return false
	}
	op.Status = status
	delete(s.ops, op.Key)
	return true
}

// Abort drops an op that never produced an optimistic write.
func (s *PendingSet) Abort(op *Op) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.ops[op.Key]; ok && current.ID == op.ID {
		delete(s.ops, op.Key)
	}
}

// InFlight reports whether the key has an in-flight op. Wired into the cache
// as its eviction exemption so a pending key's entry cannot vanish while it
// backs a rollback snapshot.
func (s *PendingSet) InFlight(key entity.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ops[key]
	return ok
}

// Get returns a copy of the in-flight op for the key.
func (s *PendingSet) Get(key entity.Key) (Op, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[key]
	if !ok {
		return Op{}, false
	}
	return *op, true
}

// Len returns the number of in-flight ops.
func (s *PendingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// Clear drops every tracked op. Used on logout; in-flight committers that
// settle afterwards find their op gone and discard their results.
func (s *PendingSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = make(map[entity.Key]*Op)
}
