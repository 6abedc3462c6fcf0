// Package store wires the engine together: the entity cache with its
// eviction exemption for pending keys, the mutation coordinator, the push
// reconciler registered as its settle listener, the resilient request
// client, and the health checks over all of them.
//
// A Store is per-session state. Construct one per authenticated session,
// Reset it on logout, and Close it when the session ends.
package store
