package admission

import (
	"errors"

	"github.com/creditsys/admission/kv"
	"github.com/creditsys/admission/token"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrRateLimited is returned by Admit when a request exceeds its window
	// budget. HTTP surfaces map it to 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrBanned is returned by Admit while an identifier is under an active
	// ban. HTTP surfaces map it to 403.
	ErrBanned = errors.New("banned")

	// ErrTokenRequired is returned by Admit when authentication is required
	// and no bearer token was presented.
	ErrTokenRequired = errors.New("token required")
)

// Store and token failures keep their subsystem identity; the aliases below
// let callers match every error in the module with a single import.
var (
	ErrStoreUnavailable = kv.ErrStoreUnavailable
	ErrNotFound         = kv.ErrNotFound

	ErrTokenMalformed      = token.ErrMalformed
	ErrTokenSignature      = token.ErrSignature
	ErrTokenExpired        = token.ErrExpired
	ErrRevoked             = token.ErrRevoked
	ErrTypeMismatch        = token.ErrTypeMismatch
	ErrFingerprintMismatch = token.ErrFingerprintMismatch
)
