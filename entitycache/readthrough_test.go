package entitycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harborpoint/policykit/clock"
	"github.com/harborpoint/policykit/entity"
)

func countingFetcher(calls *atomic.Int32, p entity.Policy) Fetcher {
	return func(ctx context.Context) (entity.Entity, error) {
		calls.Add(1)
		return p, nil
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestReadThrough_FreshHitSkipsFetch(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	c := New(Config{Clock: fake})
	rt := NewReadThrough(c)

	cached := policy("P-1", entity.PolicyActive)
	c.Put(cached.EntityKey(), cached, time.Minute)

	var calls atomic.Int32
	got, err := rt.Get(context.Background(), cached.EntityKey(), time.Minute,
		countingFetcher(&calls, policy("P-1", entity.PolicyExpired)))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.(entity.Policy).Status != entity.PolicyActive {
		t.Errorf("Status = %v, want cached Active", got.(entity.Policy).Status)
	}
	if calls.Load() != 0 {
		t.Errorf("fetcher calls = %d, want 0 on fresh hit", calls.Load())
	}
}

func TestReadThrough_MissAwaitsFetch(t *testing.T) {
	c := New(Config{})
	rt := NewReadThrough(c)

	p := policy("P-1", entity.PolicyDraft)
	var calls atomic.Int32
	got, err := rt.Get(context.Background(), p.EntityKey(), time.Minute, countingFetcher(&calls, p))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.(entity.Policy).ID != "P-1" {
		t.Errorf("got %#v, want fetched policy", got)
	}
	if calls.Load() != 1 {
		t.Errorf("fetcher calls = %d, want 1", calls.Load())
	}
	if _, ok := c.Get(p.EntityKey()); !ok {
		t.Error("fetched entity not cached")
	}
}

func TestReadThrough_StaleServesImmediatelyAndRefreshes(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	c := New(Config{Clock: fake})
	rt := NewReadThrough(c)

	stale := policy("P-1", entity.PolicyInReview)
	c.Put(stale.EntityKey(), stale, 30*time.Second)
	fake.Advance(31 * time.Second)

	var calls atomic.Int32
	got, err := rt.Get(context.Background(), stale.EntityKey(), time.Minute,
		countingFetcher(&calls, policy("P-1", entity.PolicyApproved)))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// The caller sees the stale value without waiting on the network.
	if got.(entity.Policy).Status != entity.PolicyInReview {
		t.Errorf("Status = %v, want stale InReview", got.(entity.Policy).Status)
	}

	waitFor(t, func() bool {
		entry, ok := c.Get(stale.EntityKey())
		return ok && entry.Data.(entity.Policy).Status == entity.PolicyApproved
	})
	if calls.Load() != 1 {
		t.Errorf("fetcher calls = %d, want 1", calls.Load())
	}
}

func TestReadThrough_MissFetchErrorPropagates(t *testing.T) {
	c := New(Config{})
	rt := NewReadThrough(c)

	key := policyKey("P-1")
	fetchErr := errors.New("backend down")
	_, err := rt.Get(context.Background(), key, time.Minute, func(ctx context.Context) (entity.Entity, error) {
		return nil, fetchErr
	})
	if !errors.Is(err, fetchErr) {
		t.Errorf("Get() error = %v, want %v", err, fetchErr)
	}
	if _, ok := c.Get(key); ok {
		t.Error("failed fetch populated the cache")
	}
}

func TestReadThrough_RefreshFailureKeepsStaleEntry(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	c := New(Config{Clock: fake})
	rt := NewReadThrough(c)

	stale := policy("P-1", entity.PolicyInReview)
	c.Put(stale.EntityKey(), stale, 30*time.Second)
	fake.Advance(31 * time.Second)

	done := make(chan struct{})
	_, err := rt.Get(context.Background(), stale.EntityKey(), time.Minute, func(ctx context.Context) (entity.Entity, error) {
		defer close(done)
		return nil, errors.New("backend down")
	})
	if err != nil {
		t.Fatalf("Get() error = %v, stale read must not fail", err)
	}

	<-done
	entry, ok := c.Get(stale.EntityKey())
	if !ok {
		t.Fatal("stale entry removed after failed refresh")
	}
	if entry.Data.(entity.Policy).Status != entity.PolicyInReview {
		t.Errorf("Status = %v, want stale value preserved", entry.Data.(entity.Policy).Status)
	}
}

func TestReadThrough_ConcurrentMissesCollapse(t *testing.T) {
	c := New(Config{})
	rt := NewReadThrough(c)

	key := policyKey("P-1")
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(ctx context.Context) (entity.Entity, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return policy("P-1", entity.PolicyActive), nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.Get(context.Background(), key, time.Minute, fetch)
	}()

	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.Get(context.Background(), key, time.Minute, fetch)
	}()

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetcher calls = %d, want 1 (concurrent misses must share one fetch)", calls.Load())
	}
}
