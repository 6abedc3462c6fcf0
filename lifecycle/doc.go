// Package lifecycle validates entity status transitions against explicit
// transition tables.
//
// The checks are pure and synchronous: no network, no cache access. The
// mutation coordinator consults them before any network call so illegal
// transitions are rejected locally rather than round-tripped to the server.
package lifecycle
