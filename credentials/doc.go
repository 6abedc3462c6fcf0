// Package credentials defines the boundary to the external credential
// provider.
//
// The request client consumes tokens through the Provider interface and
// never reads or writes token storage itself. Refreshing adds refresh
// deduplication and proactive expiry handling for JWT bearer tokens on top
// of any Provider implementation.
package credentials
