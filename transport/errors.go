package transport

import (
	"fmt"
	"time"
)

// NetworkError reports a transient transport failure: a connection error, a
// timeout, a 5xx response, or a 429. Network errors are retryable and count
// against the circuit breaker.
type NetworkError struct {
	Method string
	Path   string
	// Status is the HTTP status, or 0 for connection-level failures.
	Status int
	Err    error

	retryAfter    time.Duration
	hasRetryAfter bool
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: %s %s failed with status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("transport: %s %s failed: %v", e.Method, e.Path, e.Err)
}

// Unwrap returns the underlying error, if any.
func (e *NetworkError) Unwrap() error { return e.Err }

// RetryAfter returns the server-supplied retry delay, when present. It
// implements resilience.RetryAfterHinter so a 429's Retry-After header
// overrides the computed backoff.
func (e *NetworkError) RetryAfter() (time.Duration, bool) {
	return e.retryAfter, e.hasRetryAfter
}

// ValidationError reports a server-side 4xx rejection. The body is carried
// verbatim for the UI to surface; validation errors are never retried.
type ValidationError struct {
	Status        int
	Body          []byte
	CorrelationID string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("transport: request rejected with status %d", e.Status)
}

// AuthenticationError reports an authentication failure that survived the
// single automatic token refresh, or a refresh that itself failed.
type AuthenticationError struct {
	Status int
	Err    error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("transport: authentication failed with status %d", e.Status)
}

// Unwrap returns the underlying error, if any.
func (e *AuthenticationError) Unwrap() error { return e.Err }
