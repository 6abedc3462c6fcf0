package credentials

import "errors"

// Sentinel errors for credential handling.
var (
	// ErrNoToken is returned when no bearer credential is available.
	ErrNoToken = errors.New("credentials: no token available")

	// ErrRefreshFailed is returned when a token refresh cannot be completed.
	ErrRefreshFailed = errors.New("credentials: token refresh failed")
)
