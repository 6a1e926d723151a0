package admission

import (
	"context"
	"errors"
	"time"

	"github.com/creditsys/admission/kv"
	"github.com/creditsys/admission/token"
)

const (
	auditEventRateLimitExceeded    = "rate_limit_exceeded"
	auditEventBanIssued            = "ban_issued"
	auditEventBannedRequestBlocked = "banned_request_blocked"
	auditEventFingerprintMismatch  = "fingerprint_mismatch"
	auditEventTokenRevoked         = "token_revoked"
	auditEventTokensRevokedAll     = "tokens_revoked_all"
	auditEventUnban                = "unban"
	auditEventLimitReset           = "limit_reset"
)

// AuditErrorCode is the stable error vocabulary written into audit events.
type AuditErrorCode string

const (
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrBanned             AuditErrorCode = "banned"
	auditErrTokenRequired      AuditErrorCode = "token_required"
	auditErrTokenMalformed     AuditErrorCode = "token_malformed"
	auditErrTokenSignature     AuditErrorCode = "token_signature_invalid"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrTypeMismatch       AuditErrorCode = "token_type_mismatch"
	auditErrFingerprint        AuditErrorCode = "fingerprint_mismatch"
	auditErrBackendUnavailable AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	identifier string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		Subject:    subject,
		Identifier: identifier,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrBanned):
		return auditErrBanned
	case errors.Is(err, ErrTokenRequired):
		return auditErrTokenRequired
	case errors.Is(err, token.ErrFingerprintMismatch):
		return auditErrFingerprint
	case errors.Is(err, token.ErrExpired):
		return auditErrTokenExpired
	case errors.Is(err, token.ErrRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, token.ErrSignature):
		return auditErrTokenSignature
	case errors.Is(err, token.ErrTypeMismatch):
		return auditErrTypeMismatch
	case errors.Is(err, token.ErrMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, kv.ErrStoreUnavailable):
		return auditErrBackendUnavailable
	default:
		return auditErrInternal
	}
}
