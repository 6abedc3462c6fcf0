// Package reconcile folds server push messages into the entity cache.
//
// A push carries newer server truth than anything cached, with one
// exception: while a mutation is in flight on the same entity, applying the
// push would clobber the optimistic UI state before the mutation settles.
// Those pushes are parked in a single-slot buffer per key (a newer push
// overwrites an older one) and replayed when the mutation settles, whichever
// way it settled.
package reconcile
