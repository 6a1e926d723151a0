// Package admission is the request admission core for multi-tenant API
// backends: per-identifier rate limiting with escalating automatic bans,
// and a revocable token layer bound to the presenting client, all backed by
// one encrypted Redis keyspace.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build], and any number of process replicas sharing a store see
// the same counters, bans, and token validity.
//
// # Architecture boundaries
//
// admission is the composition surface. It exposes [Engine], [Builder],
// [Config], and value types (AdmitRequest, AdmitResult, MetricsSnapshot).
// The subsystems live in their own packages: kv (encrypted store client),
// ratelimit (windows and bans), token (issue/verify/revoke), middleware
// (the HTTP guard).
//
// # What this package must NOT do
//
//   - Expose the Redis client or key layout in its public API.
//   - Read secret material from disk; keys and salts arrive as bytes.
//   - Block the request path on audit delivery.
//
// # Failure posture
//
// A store outage splits two ways, both deliberate: rate limit checks fail
// open so the platform keeps serving anonymous traffic, while token
// verification fails closed so revocation is never silently skipped.
package admission
