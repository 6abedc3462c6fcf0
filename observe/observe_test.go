package observe

import (
	"context"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"minimal", Config{ServiceName: "policykit"}, false},
		{"missing service name", Config{}, true},
		{"valid tracing", Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 0.5}}, false},
		{"bad tracing exporter", Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, Exporter: "zipkin"}}, true},
		{"bad sample pct", Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, Exporter: "none", SamplePct: 1.5}}, true},
		{"bad metrics exporter", Config{ServiceName: "s", Metrics: MetricsConfig{Enabled: true, Exporter: "statsd"}}, true},
		{"bad log level", Config{ServiceName: "s", Logging: LoggingConfig{Enabled: true, Level: "trace"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewObserver_Disabled(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "policykit"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	if obs.Tracer() == nil {
		t.Error("Tracer() = nil")
	}
	if obs.Meter() == nil {
		t.Error("Meter() = nil")
	}
	if obs.Logger() == nil {
		t.Error("Logger() = nil")
	}
}

func TestNewObserver_MetricsEnabled(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "policykit",
		Metrics:     MetricsConfig{Enabled: true, Exporter: "none"},
	})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	m, err := NewMetrics(obs.Meter())
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	// Recording must not panic.
	ctx := context.Background()
	m.RecordRequest(ctx, RequestStats{Method: "GET", Path: "/v1/policies/P1", Status: 200, Attempts: 1, Duration: 12 * time.Millisecond})
	m.RecordCacheEvent(ctx, CacheHit, "policy")
	m.RecordMutation(ctx, "transition", true, 40*time.Millisecond)
	m.RecordCircuitTransition(ctx, "closed", "open")
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	ctx := context.Background()
	m.RecordRequest(ctx, RequestStats{})
	m.RecordCacheEvent(ctx, CacheMiss, "claim")
	m.RecordMutation(ctx, "update", false, 0)
	m.RecordCircuitTransition(ctx, "open", "half-open")
}
