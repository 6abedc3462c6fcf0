// Package transport implements the resilient request client every API call
// flows through. Each request is classified by idempotency, tagged with a
// correlation ID, and executed under a bulkhead, a retry loop with
// exponential backoff and jitter, a shared circuit breaker, and a
// per-attempt deadline.
//
// Failures settle into a small taxonomy: *NetworkError for transient
// conditions (connection failures, timeouts, 5xx, 429), *ValidationError for
// server-side 4xx rejections, and *AuthenticationError when a 401 survives
// the single automatic token refresh.
//
// Example:
//
//	client, err := transport.New(transport.Config{
//		BaseURL:     "https://api.example.com",
//		Credentials: provider,
//	})
//	if err != nil {
//		return err
//	}
//
//	resp, err := client.Execute(ctx, transport.Request{
//		Method: http.MethodGet,
//		Path:   "/v1/policies/P-1001",
//	})
package transport
