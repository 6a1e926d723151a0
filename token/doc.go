// Package token issues, verifies, refreshes, and revokes the signed tokens
// that admit clients: short-lived access tokens, long-lived refresh tokens,
// and websocket handshake tokens. Every token is bound to a client
// fingerprint at issuance and backed by a validity entry in the KV store;
// presence of the entry means the token is live, absence means expired or
// revoked, and callers cannot tell the two apart.
package token
