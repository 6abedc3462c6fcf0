package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable scheduled wakeup.
type Timer interface {
	// C returns the channel the timer fires on.
	C() <-chan time.Time

	// Stop cancels the timer. Reports whether it was still pending.
	Stop() bool
}

// Clock abstracts time so delay-driven code (TTL checks, retry backoff,
// stale-while-revalidate refreshes) can be driven by a virtual clock in tests.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - After and NewTimer must deliver the fire time on their channel.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that fires once after d.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a cancellable timer that fires after d.
	NewTimer(d time.Duration) Timer
}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time { return r.t.C }
func (r *realTimer) Stop() bool          { return r.t.Stop() }

// Fake is a deterministic virtual clock for tests. Time only moves when
// Advance is called; timers whose deadline is reached fire synchronously
// inside Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
}

// NewFake creates a virtual clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that fires once the clock has advanced by d.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	return f.NewTimer(d).C()
}

// NewTimer returns a timer that fires once the clock has advanced by d.
func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{
		clock:    f,
		deadline: f.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	if d <= 0 {
		t.fired = true
		t.ch <- f.now
		return t
	}
	f.pending = append(f.pending, t)
	return t
}

// Advance moves the clock forward by d, firing due timers in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)

	sort.Slice(f.pending, func(i, j int) bool {
		return f.pending[i].deadline.Before(f.pending[j].deadline)
	})

	remaining := f.pending[:0]
	for _, t := range f.pending {
		if t.fired || t.stopped {
			continue
		}
		if !t.deadline.After(f.now) {
			t.fired = true
			t.ch <- t.deadline
			continue
		}
		remaining = append(remaining, t)
	}
	f.pending = remaining
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	ch       chan time.Time
	fired    bool
	stopped  bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Ensure both clocks implement Clock
var (
	_ Clock = realClock{}
	_ Clock = (*Fake)(nil)
)
