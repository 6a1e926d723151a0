package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Type discriminates what a token is good for.
type Type string

const (
	// TypeAccess authenticates ordinary API requests.
	TypeAccess Type = "access"
	// TypeRefresh mints new access tokens without re-authentication.
	TypeRefresh Type = "refresh"
	// TypeWebsocket admits one websocket handshake.
	TypeWebsocket Type = "websocket"

	// TypeAny skips the type check on verification.
	TypeAny Type = ""
)

func (t Type) valid() bool {
	switch t {
	case TypeAccess, TypeRefresh, TypeWebsocket:
		return true
	default:
		return false
	}
}

// Subject is who a token is issued to. Extra rides along in the token
// verbatim and comes back unchanged on verification; keep it small, it is
// part of every request carrying the token.
type Subject struct {
	ID    string
	Extra map[string]string
}

// Claims is the signed token payload. Subject, ID (the jti), IssuedAt, and
// ExpiresAt live in the embedded registered claims.
type Claims struct {
	Type        Type              `json:"typ"`
	Fingerprint string            `json:"fpt,omitempty"`
	Extra       map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}
