package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harborpoint/policykit/clock"
)

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.config.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.config.MaxFailures)
	}
	if cb.config.ResetTimeout != 60*time.Second {
		t.Errorf("ResetTimeout = %v, want 60s", cb.config.ResetTimeout)
	}
	if cb.config.HalfOpenMaxProbes != 1 {
		t.Errorf("HalfOpenMaxProbes = %d, want 1", cb.config.HalfOpenMaxProbes)
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  3,
		ResetTimeout: time.Minute,
	})

	testErr := errors.New("backend down")

	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return testErr
		})
		if err != testErr {
			t.Errorf("Execute() error = %v, want %v", err, testErr)
		}
		if cb.State() != StateClosed {
			t.Errorf("after %d failures, state = %v, want closed", i+1, cb.State())
		}
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return testErr
	})
	if err != testErr {
		t.Errorf("Execute() error = %v, want %v", err, testErr)
	}
	if cb.State() != StateOpen {
		t.Errorf("after 3 failures, state = %v, want open", cb.State())
	}

	// Open circuit fails fast without invoking the operation.
	err = cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("operation called while circuit open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() when open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2})
	testErr := errors.New("flaky")

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed (failures are not consecutive)", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		Clock:        fake,
	})

	testErr := errors.New("backend down")
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	// Before the cooldown elapses, calls still fail fast.
	fake.Advance(59 * time.Second)
	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() before cooldown = %v, want ErrCircuitOpen", err)
	}

	// After the cooldown exactly one probe is admitted.
	fake.Advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state after cooldown = %v, want half-open", cb.State())
	}

	probed := false
	err = cb.Execute(context.Background(), func(ctx context.Context) error {
		probed = true
		return nil
	})
	if err != nil {
		t.Errorf("probe error = %v, want nil", err)
	}
	if !probed {
		t.Error("probe was not executed")
	}
	if cb.State() != StateClosed {
		t.Errorf("state after successful probe = %v, want closed", cb.State())
	}
	if cb.Metrics().ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0 after close", cb.Metrics().ConsecutiveFailures)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		Clock:        fake,
	})

	testErr := errors.New("still down")
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })

	fake.Advance(time.Minute)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })

	if cb.State() != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", cb.State())
	}

	// The cooldown timer restarted at the failed probe.
	fake.Advance(30 * time.Second)
	if cb.State() != StateOpen {
		t.Errorf("state 30s after failed probe = %v, want open", cb.State())
	}
	fake.Advance(30 * time.Second)
	if cb.State() != StateHalfOpen {
		t.Errorf("state 60s after failed probe = %v, want half-open", cb.State())
	}
}

func TestCircuitBreaker_SingleProbeInHalfOpen(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Clock:        fake,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("down") })
	fake.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// While the probe is in flight, a second call is rejected.
	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second call during probe = %v, want ErrCircuitOpen", err)
	}
	close(release)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))

	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Clock:        fake,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("down") })
	fake.Advance(time.Second)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	notCounted := errors.New("business rule violation")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, notCounted)
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return notCounted })
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed (filtered error must not count)", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1})
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("down") })

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state after Reset = %v, want closed", cb.State())
	}
}
