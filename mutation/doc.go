// Package mutation coordinates optimistic writes. A mutation patches the
// cached entity immediately so the UI reflects the expected outcome, submits
// to the server, and then either confirms the cache with the canonical
// response or rolls it back to the pre-mutation snapshot.
//
// The pending set enforces a single-writer invariant per entity: a second
// mutation on a key with one in flight fails fast with
// *ConcurrentMutationError rather than queueing, because a queued intent
// could be invalidated by the first mutation's outcome.
//
// Transition mutations are validated against the lifecycle tables before
// anything is written or sent. An illegal transition never leaves the
// client.
package mutation
