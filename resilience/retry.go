package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/harborpoint/policykit/clock"
)

// RetryAfterHinter is implemented by errors that carry a server-supplied
// retry delay (for example a 429 response with a Retry-After header). The
// hint overrides the computed backoff for that attempt.
type RetryAfterHinter interface {
	RetryAfter() (time.Duration, bool)
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps the computed delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// RetryIf determines whether an error should trigger a retry.
	// Default: all non-nil errors trigger retry.
	RetryIf func(err error) bool

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Clock is the time source for backoff sleeps. Default: clock.Real().
	Clock clock.Clock
}

// Retry implements retry with exponential backoff and jitter.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	// Apply defaults
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	return &Retry{config: config}
}

// Execute runs the operation with retry logic.
//
// An ErrCircuitOpen result aborts the sequence immediately regardless of
// RetryIf: once the circuit has opened, further attempts cannot succeed
// until the cooldown elapses.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)

		if err == nil {
			return nil
		}

		lastErr = err

		if errors.Is(err, ErrCircuitOpen) {
			return err
		}

		if !r.config.RetryIf(err) {
			return err
		}

		if attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.delayFor(attempt, err)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := r.config.Clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
	}

	return lastErr
}

// delayFor computes the backoff before the next attempt:
// min(maxDelay, base*2^(attempt-1)) scaled by a jitter factor in [0.5, 1.5).
// A RetryAfter hint on the error overrides the computation.
func (r *Retry) delayFor(attempt int, err error) time.Duration {
	var hinter RetryAfterHinter
	if errors.As(err, &hinter) {
		if d, ok := hinter.RetryAfter(); ok && d > 0 {
			if d > r.config.MaxDelay {
				return r.config.MaxDelay
			}
			return d
		}
	}

	delay := time.Duration(float64(r.config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > r.config.MaxDelay || delay <= 0 {
		delay = r.config.MaxDelay
	}

	// #nosec G404 -- jitter is non-cryptographic timing variance.
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(delay) * factor)
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
