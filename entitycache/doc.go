// Package entitycache holds the client-side snapshot of server entities:
// a TTL cache keyed by (entityType, entityId) with stale-while-revalidate
// reads, LRU eviction that spares keys with in-flight mutations, and change
// notifications for view-layer subscribers.
//
// Staleness only affects fetch decisions. An expired entry remains readable
// until it is overwritten, invalidated, or evicted, so the UI can render
// last-known data while a refresh is in flight.
package entitycache
