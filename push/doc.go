// Package push consumes the server's WebSocket entity event stream and
// feeds each frame to the reconciliation layer. The listener owns the
// connection lifecycle: dialing with the current bearer token, redialing
// with exponential backoff when the stream drops, and skipping malformed
// frames without tearing the connection down.
package push
