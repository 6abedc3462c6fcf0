package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/harborpoint/policykit/entity"
	"github.com/harborpoint/policykit/health"
	"github.com/harborpoint/policykit/mutation"
	"github.com/harborpoint/policykit/transport"
)

func policyServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"P-1","policyNumber":"PN-1","status":"Draft"}`))
	}))
}

func mustStore(t *testing.T, config Config) *Store {
	t.Helper()
	s, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestStore_GetFetchesThenServesFromCache(t *testing.T) {
	var calls atomic.Int32
	srv := policyServer(t, &calls)
	defer srv.Close()

	s := mustStore(t, Config{BaseURL: srv.URL})
	key := entity.Key{Type: entity.TypePolicy, ID: "P-1"}

	got, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.(entity.Policy).PolicyNumber != "PN-1" {
		t.Errorf("Get() = %#v, want fetched policy", got)
	}

	// Second read must be a cache hit.
	if _, err := s.Get(context.Background(), key); err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestStore_MutateCommitsCanonicalEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"id":"P-1","policyNumber":"PN-1","status":"Draft"}`))
		case http.MethodPost:
			w.Write([]byte(`{"id":"P-1","policyNumber":"PN-1-confirmed","status":"Submitted"}`))
		}
	}))
	defer srv.Close()

	s := mustStore(t, Config{BaseURL: srv.URL})
	key := entity.Key{Type: entity.TypePolicy, ID: "P-1"}

	if _, err := s.Get(context.Background(), key); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	got, err := s.Mutate(context.Background(), key, mutation.Transition,
		func(current entity.Entity) entity.Entity {
			p := current.(entity.Policy)
			p.Status = entity.PolicySubmitted
			return p
		},
		transport.Request{
			Method:      http.MethodPost,
			Path:        "/v1/policies/P-1/transition",
			Body:        map[string]string{"to": "Submitted"},
			Idempotency: transport.IdempotentWithKey,
		})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if got.(entity.Policy).PolicyNumber != "PN-1-confirmed" {
		t.Error("canonical server entity not returned")
	}

	entry, ok := s.Cache().Get(key)
	if !ok || entry.Data.(entity.Policy).Status != entity.PolicySubmitted {
		t.Error("canonical entity not cached after commit")
	}
}

func TestStore_MutateRollsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"id":"P-1","policyNumber":"PN-1","status":"Draft"}`))
		default:
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"errors":{"to":"not allowed"}}`))
		}
	}))
	defer srv.Close()

	s := mustStore(t, Config{BaseURL: srv.URL})
	key := entity.Key{Type: entity.TypePolicy, ID: "P-1"}

	if _, err := s.Get(context.Background(), key); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	_, err := s.Mutate(context.Background(), key, mutation.Transition,
		func(current entity.Entity) entity.Entity {
			p := current.(entity.Policy)
			p.Status = entity.PolicySubmitted
			return p
		},
		transport.Request{
			Method:      http.MethodPost,
			Path:        "/v1/policies/P-1/transition",
			Idempotency: transport.IdempotentWithKey,
		})

	var verr *transport.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Mutate() error = %v, want *ValidationError re-thrown", err)
	}

	entry, ok := s.Cache().Get(key)
	if !ok || entry.Data.(entity.Policy).Status != entity.PolicyDraft {
		t.Error("optimistic write not rolled back to Draft")
	}
}

func TestStore_Reset(t *testing.T) {
	var calls atomic.Int32
	srv := policyServer(t, &calls)
	defer srv.Close()

	s := mustStore(t, Config{BaseURL: srv.URL})
	key := entity.Key{Type: entity.TypePolicy, ID: "P-1"}

	if _, err := s.Get(context.Background(), key); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.Cache().Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Cache().Len())
	}

	s.Reset()

	if s.Cache().Len() != 0 {
		t.Errorf("Len() = %d after Reset, want 0", s.Cache().Len())
	}
	// The next read must go back to the network.
	if _, err := s.Get(context.Background(), key); err != nil {
		t.Fatalf("Get() after Reset error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

func TestStore_HealthChecksRegistered(t *testing.T) {
	s := mustStore(t, Config{BaseURL: "http://localhost:0", PushURL: "ws://localhost:0/events"})
	defer s.Close()

	names := s.Health().CheckerNames()
	want := map[string]bool{"circuit": true, "cache": true, "push": true}
	if len(names) != len(want) {
		t.Fatalf("checkers = %v, want circuit, cache, push", names)
	}
	for _, name := range names {
		if !want[name] {
			t.Errorf("unexpected checker %q", name)
		}
	}

	results := s.Health().CheckAll(context.Background())
	// Never started, so the push stream reports degraded, not unhealthy.
	if results["push"].Status != health.StatusDegraded {
		t.Errorf("push status = %v, want degraded", results["push"].Status)
	}
}

func TestStore_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without base URL succeeded")
	}
}
