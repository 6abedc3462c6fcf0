// Package health exposes the engine's liveness surface: per-component
// checkers (circuit breaker state, push stream connectivity, cache
// occupancy) and an aggregator that runs them and reports the worst status.
//
// The engine keeps serving cached reads while the API is unreachable, so an
// open circuit or a dropped push stream reports degraded, not unhealthy.
package health
