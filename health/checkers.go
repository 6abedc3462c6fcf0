package health

import (
	"context"
	"fmt"

	"github.com/harborpoint/policykit/entitycache"
	"github.com/harborpoint/policykit/resilience"
)

// CircuitChecker reports the request client's circuit breaker state. An open
// circuit means the API is unreachable and reads are serving from cache, so
// the engine is degraded rather than down.
type CircuitChecker struct {
	breaker *resilience.CircuitBreaker
}

// NewCircuitChecker creates a checker for the given breaker.
func NewCircuitChecker(breaker *resilience.CircuitBreaker) *CircuitChecker {
	return &CircuitChecker{breaker: breaker}
}

// Name returns the name of this checker.
func (c *CircuitChecker) Name() string { return "circuit" }

// Check reports the circuit state.
func (c *CircuitChecker) Check(_ context.Context) Result {
	m := c.breaker.Metrics()
	details := map[string]any{
		"state":                m.State.String(),
		"consecutive_failures": m.ConsecutiveFailures,
	}

	switch m.State {
	case resilience.StateClosed:
		return Healthy("circuit closed").WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit probing after cooldown").WithDetails(details)
	default:
		return Degraded("circuit open, requests failing fast").WithDetails(details)
	}
}

// Connectable reports whether a stream is currently up. Implemented by the
// push listener.
type Connectable interface {
	Connected() bool
}

// PushChecker reports push stream connectivity. A disconnected stream means
// the cache can drift until TTLs force refetches.
type PushChecker struct {
	stream Connectable
}

// NewPushChecker creates a checker for the given stream.
func NewPushChecker(stream Connectable) *PushChecker {
	return &PushChecker{stream: stream}
}

// Name returns the name of this checker.
func (c *PushChecker) Name() string { return "push" }

// Check reports stream connectivity.
func (c *PushChecker) Check(_ context.Context) Result {
	if c.stream.Connected() {
		return Healthy("push stream connected")
	}
	return Degraded("push stream disconnected, reconciliation paused")
}

// CacheChecker reports entity cache occupancy against its capacity.
// Occupancy at or above the cap means every new entity now costs an
// eviction.
type CacheChecker struct {
	cache      *entitycache.Cache
	maxEntries int
}

// NewCacheChecker creates a checker for the given cache and capacity.
func NewCacheChecker(cache *entitycache.Cache, maxEntries int) *CacheChecker {
	return &CacheChecker{cache: cache, maxEntries: maxEntries}
}

// Name returns the name of this checker.
func (c *CacheChecker) Name() string { return "cache" }

// Check reports cache occupancy.
func (c *CacheChecker) Check(_ context.Context) Result {
	n := c.cache.Len()
	details := map[string]any{
		"entries":     n,
		"max_entries": c.maxEntries,
	}

	if c.maxEntries > 0 && n >= c.maxEntries {
		return Degraded(fmt.Sprintf("cache at capacity (%d/%d)", n, c.maxEntries)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("cache at %d/%d entries", n, c.maxEntries)).WithDetails(details)
}

// Ensure the concrete checkers implement Checker
var (
	_ Checker = (*CircuitChecker)(nil)
	_ Checker = (*PushChecker)(nil)
	_ Checker = (*CacheChecker)(nil)
)
