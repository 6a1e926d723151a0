// Package middleware adapts [admission.Engine] decisions to net/http:
// identifier extraction, rate limit headers, and JSON rejection bodies.
//
// # Guards
//
//   - [Admission] — the full admission pipeline, configured with options.
//   - [RequireAccess] — admission plus a mandatory access token.
//   - [RequireWebsocket] — admission guarding a websocket upgrade route.
//
// Each guard extracts the client IP, user agent, API key, and bearer token
// from the request, calls Engine.Admit, and injects verified claims into
// the request context for downstream handlers.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement admission logic itself — all decisions are delegated to
// Engine.Admit.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Access the store (Engine handles I/O).
//   - Make admission decisions beyond pass/reject from Engine.Admit.
package middleware
