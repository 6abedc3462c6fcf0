package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/harborpoint/policykit/clock"
	"github.com/harborpoint/policykit/credentials"
	"github.com/harborpoint/policykit/observe"
	"github.com/harborpoint/policykit/resilience"
)

// ErrInvalidRequest is returned when a request is missing its method or path.
var ErrInvalidRequest = errors.New("transport: method and path are required")

// Config configures the Client.
type Config struct {
	// BaseURL is the API origin all request paths are resolved against.
	BaseURL string

	// HTTPClient is the underlying HTTP client.
	// Default: http.DefaultClient
	HTTPClient *http.Client

	// Credentials supplies the bearer token attached to each request. When
	// nil, requests are sent unauthenticated and a 401 fails immediately.
	Credentials credentials.Provider

	// MaxAttempts is the attempt budget for safe and keyed-idempotent
	// requests. Non-idempotent requests always get exactly one attempt.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the backoff before the first retry.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps the backoff between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Timeout is the per-attempt deadline for ClassDefault requests.
	// Default: 30s
	Timeout time.Duration

	// UploadTimeout is the per-attempt deadline for ClassUpload requests.
	// Default: 120s
	UploadTimeout time.Duration

	// MaxFailures is the consecutive network failure count that opens the
	// circuit. Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before a probe.
	// Default: 60s
	ResetTimeout time.Duration

	// MaxConcurrent caps in-flight requests. Default: 8
	MaxConcurrent int

	// Logger receives request lifecycle events. Default: observe.NopLogger().
	Logger observe.Logger

	// Metrics receives request and circuit metrics. Default: observe.NopMetrics().
	Metrics observe.Metrics

	// Clock is the time source. Default: clock.Real().
	Clock clock.Clock
}

// Client is the resilient request client. Every outbound call flows through
// a bulkhead, a retry loop, a shared circuit breaker, and a per-attempt
// deadline, in that order. Concurrent identical safe requests are collapsed
// into one network call.
type Client struct {
	config     Config
	httpClient *http.Client
	baseURL    string

	breaker  *resilience.CircuitBreaker
	bulkhead *resilience.Bulkhead
	flight   singleflight.Group

	logger  observe.Logger
	metrics observe.Metrics
	clock   clock.Clock
}

// New creates a new Client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("transport: base URL is required")
	}

	// Apply defaults
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UploadTimeout <= 0 {
		config.UploadTimeout = 120 * time.Second
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

	logger := config.Logger.WithComponent("transport")
	metrics := config.Metrics

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  config.MaxFailures,
		ResetTimeout: config.ResetTimeout,
		IsFailure:    isCircuitFailure,
		Clock:        config.Clock,
		OnStateChange: func(from, to resilience.State) {
			logger.Warn(context.Background(), "circuit state changed",
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()},
			)
			metrics.RecordCircuitTransition(context.Background(), from.String(), to.String())
		},
	})

	return &Client{
		config:     config,
		httpClient: config.HTTPClient,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		breaker:    breaker,
		bulkhead:   resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: config.MaxConcurrent}),
		logger:     logger,
		metrics:    metrics,
		clock:      config.Clock,
	}, nil
}

// Breaker exposes the client's circuit breaker for health checks and for
// resetting on session changes.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

// Execute performs the request and returns the settled response.
//
// Safe requests with an identical method, URL, and body that arrive while an
// earlier one is still in flight share its network call and its result. The
// deduplication entry lives exactly as long as the request.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" || req.Path == "" {
		return nil, ErrInvalidRequest
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("transport: encode request body: %w", err)
		}
	}

	if req.Idempotency != Safe {
		return c.do(ctx, req, body)
	}

	key := fingerprint(req.Method, c.buildURL(req), body)
	v, err, _ := c.flight.Do(key, func() (any, error) {
		return c.do(ctx, req, body)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

func (c *Client) do(ctx context.Context, req Request, body []byte) (*Response, error) {
	correlationID := uuid.NewString()
	if req.Idempotency == IdempotentWithKey && req.IdempotencyKey == "" {
		// The key must be stable across retries so the server can
		// recognize a resubmission.
		req.IdempotencyKey = uuid.NewString()
	}

	start := c.clock.Now()
	attempts := 0
	refreshed := false
	var resp *Response

	maxAttempts := c.config.MaxAttempts
	if req.Idempotency == NonIdempotent {
		maxAttempts = 1
	}

	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   c.config.BaseDelay,
		MaxDelay:    c.config.MaxDelay,
		RetryIf:     isRetryable,
		Clock:       c.clock,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			c.logger.Warn(ctx, "retrying request",
				observe.Field{Key: "method", Value: req.Method},
				observe.Field{Key: "path", Value: req.Path},
				observe.Field{Key: "correlation_id", Value: correlationID},
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
				observe.Field{Key: "error", Value: err.Error()},
			)
		},
	})

	err := c.bulkhead.Execute(ctx, func(ctx context.Context) error {
		return retry.Execute(ctx, func(ctx context.Context) error {
			return c.breaker.Execute(ctx, func(ctx context.Context) error {
				attempts++
				r, err := c.attempt(ctx, req, body, correlationID, &refreshed)
				if err != nil {
					return err
				}
				resp = r
				return nil
			})
		})
	})

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		status = verr.Status
	}

	c.metrics.RecordRequest(ctx, observe.RequestStats{
		Method:   req.Method,
		Path:     req.Path,
		Status:   status,
		Attempts: attempts,
		Duration: c.clock.Now().Sub(start),
		Err:      err,
	})

	if err != nil {
		c.logger.Warn(ctx, "request failed",
			observe.Field{Key: "method", Value: req.Method},
			observe.Field{Key: "path", Value: req.Path},
			observe.Field{Key: "correlation_id", Value: correlationID},
			observe.Field{Key: "attempts", Value: attempts},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return nil, err
	}

	c.logger.Debug(ctx, "request settled",
		observe.Field{Key: "method", Value: req.Method},
		observe.Field{Key: "path", Value: req.Path},
		observe.Field{Key: "correlation_id", Value: correlationID},
		observe.Field{Key: "status", Value: status},
		observe.Field{Key: "attempts", Value: attempts},
	)
	return resp, nil
}

// attempt performs a single network attempt under its class deadline. A 401
// triggers at most one token refresh per request sequence, followed by an
// immediate replay within the same attempt.
func (c *Client) attempt(ctx context.Context, req Request, body []byte, correlationID string, refreshed *bool) (*Response, error) {
	timeout := c.config.Timeout
	if req.Class == ClassUpload {
		timeout = c.config.UploadTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.roundTrip(actx, req, body, correlationID)
	if err != nil {
		return nil, c.classifyTransportErr(ctx, actx, req, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if *refreshed || c.config.Credentials == nil {
			return nil, &AuthenticationError{Status: http.StatusUnauthorized}
		}
		*refreshed = true

		if _, rerr := c.config.Credentials.Refresh(ctx); rerr != nil {
			return nil, &AuthenticationError{Err: rerr}
		}
		c.logger.Info(ctx, "token refreshed after 401",
			observe.Field{Key: "correlation_id", Value: correlationID},
		)

		resp, err = c.roundTrip(actx, req, body, correlationID)
		if err != nil {
			return nil, c.classifyTransportErr(ctx, actx, req, err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &AuthenticationError{Status: http.StatusUnauthorized}
		}
	}

	return c.classifyStatus(req, resp)
}

// roundTrip issues one HTTP exchange and reads the full response body.
func (c *Client) roundTrip(ctx context.Context, req Request, body []byte, correlationID string) (*Response, error) {
	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, c.buildURL(req), rd)
	if err != nil {
		return nil, err
	}

	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("X-Correlation-ID", correlationID)
	if len(body) > 0 {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if req.Idempotency == IdempotentWithKey && req.IdempotencyKey != "" {
		hreq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)
	}

	if c.config.Credentials != nil {
		token, terr := c.config.Credentials.AccessToken(ctx)
		switch {
		case terr == nil && token != "":
			hreq.Header.Set("Authorization", "Bearer "+token)
		case terr != nil && !errors.Is(terr, credentials.ErrNoToken):
			return nil, &AuthenticationError{Err: terr}
		}
	}

	httpResp, err := c.httpClient.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode:    httpResp.StatusCode,
		Header:        httpResp.Header,
		Body:          data,
		CorrelationID: correlationID,
	}, nil
}

// classifyStatus maps a settled HTTP response to the error taxonomy.
func (c *Client) classifyStatus(req Request, resp *Response) (*Response, error) {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		ne := &NetworkError{Method: req.Method, Path: req.Path, Status: resp.StatusCode}
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			ne.retryAfter = d
			ne.hasRetryAfter = true
		}
		return nil, ne

	case resp.StatusCode >= 500:
		return nil, &NetworkError{Method: req.Method, Path: req.Path, Status: resp.StatusCode}

	case resp.StatusCode >= 400:
		return nil, &ValidationError{
			Status:        resp.StatusCode,
			Body:          resp.Body,
			CorrelationID: resp.CorrelationID,
		}

	default:
		return resp, nil
	}
}

// classifyTransportErr maps connection-level failures to the error taxonomy.
// Caller cancellation passes through untouched so it is neither retried nor
// counted against the circuit.
func (c *Client) classifyTransportErr(parent, attempt context.Context, req Request, err error) error {
	var ae *AuthenticationError
	if errors.As(err, &ae) {
		return err
	}

	if parent.Err() != nil {
		return parent.Err()
	}

	if errors.Is(err, context.DeadlineExceeded) || attempt.Err() != nil {
		return &NetworkError{Method: req.Method, Path: req.Path, Err: resilience.ErrTimeout}
	}

	return &NetworkError{Method: req.Method, Path: req.Path, Err: err}
}

func (c *Client) buildURL(req Request) string {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// parseRetryAfter parses a Retry-After header given either as delay seconds
// or as an HTTP date.
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// isRetryable reports whether the error is transient. Only network errors
// (connection failures, timeouts, 5xx, 429) qualify; validation and
// authentication errors never do.
func isRetryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// isCircuitFailure reports whether the error counts against the circuit
// breaker. The circuit tracks backend health, so only network errors count;
// a 4xx means the backend is up and answering.
func isCircuitFailure(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
