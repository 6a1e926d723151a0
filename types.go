package admission

import (
	"github.com/creditsys/admission/ratelimit"
	"github.com/creditsys/admission/token"
)

// AdmitRequest carries everything the engine needs to judge one inbound
// request.
type AdmitRequest struct {
	// ClientIP is the caller's address after any proxy resolution.
	ClientIP string
	// UserAgent is the caller's User-Agent header, verbatim.
	UserAgent string

	// APIKey, when present, is counted under the api_key dimension.
	APIKey string

	// BearerToken is the presented token without the "Bearer " prefix.
	// Empty means anonymous.
	BearerToken string

	// RequireAuth rejects the request unless a valid token of TokenType is
	// attached.
	RequireAuth bool
	// TokenType constrains the accepted token type; token.TypeAny takes
	// whatever verifies.
	TokenType token.Type
}

// AdmitResult is the outcome of one admission check. The Decision is
// populated even when the returned error is ErrRateLimited or ErrBanned, so
// callers can build rate limit headers for denials too.
type AdmitResult struct {
	Decision ratelimit.Decision

	// Claims is set when a bearer token verified, whether or not auth was
	// required.
	Claims *token.Claims
}
