package credentials

import (
	"context"
	"sync"
)

// Provider supplies the bearer credential attached to outbound requests.
// Token acquisition and storage live outside this module; the request client
// only ever asks for the current token just-in-time and never persists it
// beyond the scope of a single request.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - AccessToken returns ErrNoToken when no credential is available.
// - Refresh exchanges the current credential for a fresh one and returns it.
type Provider interface {
	// AccessToken returns the current bearer token.
	AccessToken(ctx context.Context) (string, error)

	// Refresh obtains a new bearer token, invalidating the old one.
	Refresh(ctx context.Context) (string, error)
}

// Static is a fixed-token provider for tests and service credentials.
// Refresh rotates to the next token in the configured sequence, or fails
// with ErrRefreshFailed once the sequence is exhausted.
type Static struct {
	mu     sync.Mutex
	tokens []string
	index  int
}

// NewStatic creates a provider that serves the given tokens in order.
// The provider starts on the first token; each Refresh advances to the next.
func NewStatic(tokens ...string) *Static {
	return &Static{tokens: tokens}
}

// AccessToken returns the current token.
func (s *Static) AccessToken(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.tokens) {
		return "", ErrNoToken
	}
	return s.tokens[s.index], nil
}

// Refresh advances to the next token.
func (s *Static) Refresh(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index+1 >= len(s.tokens) {
		return "", ErrRefreshFailed
	}
	s.index++
	return s.tokens[s.index], nil
}

// Ensure Static implements Provider
var _ Provider = (*Static)(nil)
