package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
)

// Idempotency classifies a request for deduplication and retry purposes.
type Idempotency int

const (
	// Safe requests have no side effects (GET). They are deduplicated and
	// freely retried.
	Safe Idempotency = iota
	// IdempotentWithKey requests mutate state but carry an idempotency key,
	// so the server processes a retried submission at most once.
	IdempotentWithKey
	// NonIdempotent requests are never retried automatically; the caller
	// must resubmit explicitly.
	NonIdempotent
)

// String returns the string representation of the classification.
func (i Idempotency) String() string {
	switch i {
	case Safe:
		return "safe"
	case IdempotentWithKey:
		return "idempotent-with-key"
	case NonIdempotent:
		return "non-idempotent"
	default:
		return "unknown"
	}
}

// Class selects the deadline applied to a request.
type Class int

const (
	// ClassDefault is the standard API call deadline.
	ClassDefault Class = iota
	// ClassUpload is for document uploads, which get a longer deadline.
	ClassUpload
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case ClassDefault:
		return "default"
	case ClassUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// Request describes one outbound API call.
type Request struct {
	// Method is the HTTP method.
	Method string

	// Path is the request path relative to the client's base URL.
	Path string

	// Query holds optional query parameters.
	Query url.Values

	// Body is JSON-marshaled into the request body when non-nil.
	Body any

	// Idempotency classifies the request. Zero value is Safe; mutating
	// requests must set IdempotentWithKey or NonIdempotent explicitly.
	Idempotency Idempotency

	// IdempotencyKey is sent as X-Idempotency-Key on IdempotentWithKey
	// requests. Generated when empty, and held stable across retries.
	IdempotencyKey string

	// Class selects the deadline. Zero value is ClassDefault.
	Class Class
}

// fingerprint produces the deduplication key for a request:
// hash(method + url + body). Two safe requests with the same fingerprint
// issued while one is in flight share a single network call.
func fingerprint(method, fullURL string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(fullURL))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// Response is a settled HTTP response.
type Response struct {
	StatusCode    int
	Header        http.Header
	Body          []byte
	CorrelationID string
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}
