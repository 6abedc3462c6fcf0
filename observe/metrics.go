package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheEvent classifies entity cache activity for metrics.
type CacheEvent string

const (
	CacheHit      CacheEvent = "hit"
	CacheStaleHit CacheEvent = "stale-hit"
	CacheMiss     CacheEvent = "miss"
	CacheEviction CacheEvent = "eviction"
	CacheRefresh  CacheEvent = "refresh"
)

// RequestStats describes one settled request for metrics purposes.
type RequestStats struct {
	Method   string
	Path     string
	Status   int
	Attempts int
	Duration time.Duration
	Err      error
}

// Metrics records engine activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly; recording is fire-and-forget.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records a settled HTTP request.
	RecordRequest(ctx context.Context, stats RequestStats)

	// RecordCacheEvent records entity cache activity.
	RecordCacheEvent(ctx context.Context, event CacheEvent, entityType string)

	// RecordMutation records a settled optimistic mutation.
	RecordMutation(ctx context.Context, kind string, committed bool, duration time.Duration)

	// RecordCircuitTransition records a circuit breaker state change.
	RecordCircuitTransition(ctx context.Context, from, to string)
}

// metricsImpl is the OpenTelemetry-backed implementation of Metrics.
type metricsImpl struct {
	requestTotal    metric.Int64Counter
	requestErrors   metric.Int64Counter
	requestDuration metric.Float64Histogram
	cacheEvents     metric.Int64Counter
	mutationTotal   metric.Int64Counter
	rollbackTotal   metric.Int64Counter
	circuitChanges  metric.Int64Counter
}

// NewMetrics creates a Metrics instance backed by the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	requestTotal, err := meter.Int64Counter(
		"client.request.total",
		metric.WithDescription("Total number of outbound requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestErrors, err := meter.Int64Counter(
		"client.request.errors",
		metric.WithDescription("Total number of failed outbound requests"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"client.request.duration_ms",
		metric.WithDescription("Outbound request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheEvents, err := meter.Int64Counter(
		"client.cache.events",
		metric.WithDescription("Entity cache hits, misses, and evictions"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	mutationTotal, err := meter.Int64Counter(
		"client.mutation.total",
		metric.WithDescription("Total number of optimistic mutations"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, err
	}

	rollbackTotal, err := meter.Int64Counter(
		"client.mutation.rollbacks",
		metric.WithDescription("Total number of rolled-back mutations"),
		metric.WithUnit("{rollback}"),
	)
	if err != nil {
		return nil, err
	}

	circuitChanges, err := meter.Int64Counter(
		"client.circuit.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		requestTotal:    requestTotal,
		requestErrors:   requestErrors,
		requestDuration: requestDuration,
		cacheEvents:     cacheEvents,
		mutationTotal:   mutationTotal,
		rollbackTotal:   rollbackTotal,
		circuitChanges:  circuitChanges,
	}, nil
}

func (m *metricsImpl) RecordRequest(ctx context.Context, stats RequestStats) {
	opt := metric.WithAttributes(
		attribute.String("http.method", stats.Method),
		attribute.String("http.path", stats.Path),
		attribute.Int("http.status", stats.Status),
		attribute.Int("attempts", stats.Attempts),
	)

	m.requestTotal.Add(ctx, 1, opt)
	if stats.Err != nil {
		m.requestErrors.Add(ctx, 1, opt)
	}
	m.requestDuration.Record(ctx, float64(stats.Duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordCacheEvent(ctx context.Context, event CacheEvent, entityType string) {
	m.cacheEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", string(event)),
		attribute.String("entity.type", entityType),
	))
}

func (m *metricsImpl) RecordMutation(ctx context.Context, kind string, committed bool, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("committed", committed),
	)
	m.mutationTotal.Add(ctx, 1, opt)
	if !committed {
		m.rollbackTotal.Add(ctx, 1, opt)
	}
}

func (m *metricsImpl) RecordCircuitTransition(ctx context.Context, from, to string) {
	m.circuitChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// NopMetrics returns a Metrics implementation that records nothing.
func NopMetrics() Metrics { return nopMetrics{} }

type nopMetrics struct{}

func (nopMetrics) RecordRequest(ctx context.Context, stats RequestStats)                 {}
func (nopMetrics) RecordCacheEvent(ctx context.Context, event CacheEvent, t string)      {}
func (nopMetrics) RecordMutation(ctx context.Context, k string, c bool, d time.Duration) {}
func (nopMetrics) RecordCircuitTransition(ctx context.Context, from, to string)          {}

// Ensure implementations satisfy Metrics
var (
	_ Metrics = (*metricsImpl)(nil)
	_ Metrics = nopMetrics{}
)
