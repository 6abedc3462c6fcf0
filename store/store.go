package store

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/harborpoint/policykit/clock"
	"github.com/harborpoint/policykit/credentials"
	"github.com/harborpoint/policykit/entity"
	"github.com/harborpoint/policykit/entitycache"
	"github.com/harborpoint/policykit/health"
	"github.com/harborpoint/policykit/mutation"
	"github.com/harborpoint/policykit/observe"
	"github.com/harborpoint/policykit/push"
	"github.com/harborpoint/policykit/reconcile"
	"github.com/harborpoint/policykit/transport"
)

// Config configures a Store.
type Config struct {
	// BaseURL is the API origin.
	BaseURL string

	// PushURL is the WebSocket endpoint of the entity event stream. Push
	// reconciliation is disabled when empty.
	PushURL string

	// Credentials supplies bearer tokens for API and push connections.
	Credentials credentials.Provider

	// HTTPClient is the underlying HTTP client. Default: http.DefaultClient.
	HTTPClient *http.Client

	// CacheMaxEntries caps the entity cache. Default: 500
	CacheMaxEntries int

	// CacheTTL is the freshness window for fetched and mutated entities.
	// Default: 60s
	CacheTTL time.Duration

	// PushTTL is the freshness window for entities written from push
	// messages. Default: 300s
	PushTTL time.Duration

	// Logger is the root logger; components derive their own scopes.
	// Default: observe.NopLogger().
	Logger observe.Logger

	// Metrics receives engine metrics. Default: observe.NopMetrics().
	Metrics observe.Metrics

	// Clock is the time source. Default: clock.Real().
	Clock clock.Clock
}

// Store is the per-session composition root: one cache, one pending set, one
// coordinator, one reconciler, and one request client, wired together. Each
// session gets its own Store; there is no package-level state.
type Store struct {
	config Config

	client      *transport.Client
	cache       *entitycache.Cache
	readThrough *entitycache.ReadThrough
	pending     *mutation.PendingSet
	coordinator *mutation.Coordinator
	reconciler  *reconcile.Reconciler
	listener    *push.Listener
	checks      *health.Aggregator

	logger observe.Logger
}

// New creates a fully wired Store.
func New(config Config) (*Store, error) {
	if config.BaseURL == "" {
		return nil, errors.New("store: base URL is required")
	}

	// Apply defaults
	if config.CacheMaxEntries <= 0 {
		config.CacheMaxEntries = 500
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 60 * time.Second
	}
	if config.PushTTL <= 0 {
		config.PushTTL = 300 * time.Second
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Metrics == nil {
		config.Metrics = observe.NopMetrics()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	pending := mutation.NewPendingSet(config.Clock)

	cache := entitycache.New(entitycache.Config{
		MaxEntries: config.CacheMaxEntries,
		DefaultTTL: config.CacheTTL,
		// Entries backing an in-flight rollback snapshot must survive
		// eviction pressure.
		EvictExempt: pending.InFlight,
		Clock:       config.Clock,
		Logger:      config.Logger,
		Metrics:     config.Metrics,
	})

	client, err := transport.New(transport.Config{
		BaseURL:     config.BaseURL,
		HTTPClient:  config.HTTPClient,
		Credentials: config.Credentials,
		Logger:      config.Logger,
		Metrics:     config.Metrics,
		Clock:       config.Clock,
	})
	if err != nil {
		return nil, err
	}

	coordinator, err := mutation.NewCoordinator(mutation.Config{
		Cache:   cache,
		Pending: pending,
		TTL:     config.CacheTTL,
		Logger:  config.Logger,
		Metrics: config.Metrics,
		Clock:   config.Clock,
	})
	if err != nil {
		return nil, err
	}

	reconciler, err := reconcile.New(reconcile.Config{
		Cache:   cache,
		Pending: pending,
		PushTTL: config.PushTTL,
		Logger:  config.Logger,
	})
	if err != nil {
		return nil, err
	}
	coordinator.AddSettleListener(reconciler.OnSettled)

	s := &Store{
		config:      config,
		client:      client,
		cache:       cache,
		readThrough: entitycache.NewReadThrough(cache),
		pending:     pending,
		coordinator: coordinator,
		reconciler:  reconciler,
		logger:      config.Logger.WithComponent("store"),
	}

	if config.PushURL != "" {
		listener, err := push.NewListener(push.Config{
			URL:         config.PushURL,
			Handler:     reconciler.OnPushMessage,
			Credentials: config.Credentials,
			Logger:      config.Logger,
			Clock:       config.Clock,
		})
		if err != nil {
			return nil, err
		}
		s.listener = listener
	}

	checks := health.NewAggregator()
	checks.Register("circuit", health.NewCircuitChecker(client.Breaker()))
	checks.Register("cache", health.NewCacheChecker(cache, config.CacheMaxEntries))
	if s.listener != nil {
		checks.Register("push", health.NewPushChecker(s.listener))
	}
	s.checks = checks

	return s, nil
}

// Start begins consuming the push stream, when one is configured.
func (s *Store) Start(ctx context.Context) {
	if s.listener != nil {
		s.listener.Start(ctx)
	}
}

// Get returns the entity for the key, serving fresh cache hits locally,
// stale hits immediately with a background refresh, and misses by fetching.
func (s *Store) Get(ctx context.Context, key entity.Key) (entity.Entity, error) {
	return s.readThrough.Get(ctx, key, s.config.CacheTTL, func(ctx context.Context) (entity.Entity, error) {
		resp, err := s.client.Execute(ctx, transport.Request{
			Method: http.MethodGet,
			Path:   entityPath(key),
		})
		if err != nil {
			return nil, err
		}
		return entity.Decode(key.Type, resp.Body)
	})
}

// Mutate runs an optimistic mutation whose committer executes the given
// request and decodes the canonical entity from the response.
func (s *Store) Mutate(ctx context.Context, key entity.Key, kind mutation.Kind, patch mutation.Patch, req transport.Request) (entity.Entity, error) {
	return s.coordinator.Mutate(ctx, key, kind, patch, func(ctx context.Context) (entity.Entity, error) {
		resp, err := s.client.Execute(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.Body) == 0 {
			return nil, nil
		}
		return entity.Decode(key.Type, resp.Body)
	})
}

// Cache exposes the entity cache for view-layer subscriptions.
func (s *Store) Cache() *entitycache.Cache { return s.cache }

// Client exposes the request client for calls outside the entity model.
func (s *Store) Client() *transport.Client { return s.client }

// Coordinator exposes the mutation coordinator.
func (s *Store) Coordinator() *mutation.Coordinator { return s.coordinator }

// Health exposes the engine's health checks.
func (s *Store) Health() *health.Aggregator { return s.checks }

// Reset discards all client-side state: cache, pending ops, deferred
// pushes, and the circuit's failure history. Used on logout and permission
// changes. In-flight committers settle into the void.
func (s *Store) Reset() {
	s.pending.Clear()
	s.reconciler.Clear()
	s.cache.Clear()
	s.client.Breaker().Reset()
	s.logger.Info(context.Background(), "store reset")
}

// Close stops the push listener. The store must not be used afterwards.
func (s *Store) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// entityPath maps a key to its REST resource path.
func entityPath(key entity.Key) string {
	switch key.Type {
	case entity.TypePolicy:
		return "/v1/policies/" + key.ID
	case entity.TypeRiskAssessment:
		return "/v1/risk-assessments/" + key.ID
	case entity.TypeClaim:
		return "/v1/claims/" + key.ID
	default:
		return "/v1/queue-snapshots/" + key.ID
	}
}
