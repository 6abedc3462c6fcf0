package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecutor_Empty(t *testing.T) {
	e := NewExecutor()

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecutor_RetryOutsideCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute})
	e := NewExecutor(
		WithRetry(NewRetry(RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond})),
		WithCircuitBreaker(cb),
	)

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("backend down")
	})

	// Attempts 1 and 2 reach the backend and open the circuit; attempt 3 is
	// rejected by the breaker, which aborts the retry sequence.
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if cb.State() != StateOpen {
		t.Errorf("circuit state = %v, want open", cb.State())
	}
}

func TestExecutor_BulkheadRejectsOverflow(t *testing.T) {
	e := NewExecutor(WithBulkhead(NewBulkhead(BulkheadConfig{MaxConcurrent: 1})))

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = e.Execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := e.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Execute() error = %v, want ErrBulkheadFull", err)
	}
	close(release)
}

func TestExecutor_TimeoutApplied(t *testing.T) {
	e := NewExecutor(WithTimeout(10 * time.Millisecond))

	err := e.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() error = %v, want ErrTimeout", err)
	}
}
