// Package kv provides the pooled, encrypted Redis client that every other
// subsystem stores its state in.
//
// # Encryption boundary
//
// Values written through [Client.Set] and [Client.SetNX] are sealed with
// AES-256-GCM before they reach the wire; [Client.Get] opens them
// transparently. Counter keys ([Client.IncrWindow]) and index sets are
// plaintext: Redis INCR and SADD operate on the raw value, and those keys
// carry no payload data, only counts and opaque identifiers.
//
// # Atomic primitives
//
// IncrWindow, SetWithIndex, and DeleteWithIndex are single Lua scripts.
// IncrWindow is the correctness-critical one: the increment and the
// conditional TTL arm happen in one round trip, so concurrent callers can
// never observe a counter without a window.
//
// # What this package must NOT do
//
//   - Interpret the values it stores (no token, ban, or counter semantics).
//   - Import any other package of this module (lowest layer).
//   - Fall back to plaintext when the sealer rejects a value.
package kv
