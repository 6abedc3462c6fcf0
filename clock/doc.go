// Package clock provides the time source used by delay-driven code.
//
// Production code uses Real; tests use Fake to advance TTLs and backoff
// delays deterministically instead of sleeping.
package clock
