// Package entity defines the identity and payload model shared by the cache,
// mutation, and reconciliation layers.
//
// Every cached value implements Entity and is addressed by a Key of
// (entity type, entity id). Raw JSON payloads from HTTP responses or push
// messages are parsed and validated once, at the cache boundary, via Decode;
// downstream code only ever sees typed values.
package entity
