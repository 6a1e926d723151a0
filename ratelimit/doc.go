// Package ratelimit enforces per-identifier fixed-window request limits with
// violation tracking and escalating automatic bans.
//
// # Window semantics
//
// Counters are fixed windows: the key embeds the window index
// (floor(now/window)) and carries a TTL of one window length, armed
// atomically with the first increment. A client can burst up to twice the
// threshold across a window boundary; that is accepted fixed-window
// behavior, not a defect.
//
// Key prefixes:
//   - rl: — request counter per (type, value, window index)
//   - rv: — violation counter per (type, value)
//   - rb: — ban record (encrypted) per (type, value)
//   - ro: — repeat-offense counter per (type, value)
//
// # Failure policy
//
// Check fails OPEN: when the store is unreachable the decision is Allowed
// with Remaining -1 and FailedOpen set, so an outage never turns the limiter
// into a denial-of-service on ourselves. Administrative operations
// (IsBanned, Unban, Reset) surface errors instead.
//
// # What this package must NOT do
//
//   - Hold any in-process counter state; the store is the only
//     serialization point, so any number of replicas share one view.
//   - Interpret tokens or identities beyond the (type, value) pair.
package ratelimit
