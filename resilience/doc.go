// Package resilience provides the failure-handling patterns used by the
// request client.
//
// # Patterns
//
//   - Circuit Breaker: stops issuing calls to a failing backend after a
//     threshold of consecutive failures, probes it again after a cooldown.
//
//   - Retry: retries failed operations with exponential backoff and jitter,
//     honoring server-supplied Retry-After hints.
//
//   - Bulkhead: caps concurrent operations.
//
//   - Timeout: bounds each attempt with a deadline.
//
// # Usage
//
// Patterns can be used independently or composed:
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    MaxFailures:  5,
//	    ResetTimeout: time.Minute,
//	})
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts: 3,
//	    BaseDelay:   100 * time.Millisecond,
//	    MaxDelay:    5 * time.Second,
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithRetry(retry),
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithTimeout(30*time.Second),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return callBackend(ctx)
//	})
//
// Note the composition order: retry wraps the circuit breaker so every
// attempt is gated and counted individually, and the retry loop aborts as
// soon as the circuit opens.
package resilience
