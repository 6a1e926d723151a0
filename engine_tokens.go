package admission

import (
	"context"
	"errors"
	"strconv"

	"github.com/creditsys/admission/token"
)

// binding assembles the client fingerprint inputs from the context
// carriers. Handlers that issue or verify tokens outside of Admit must
// populate the context with WithClientIP and WithUserAgent first.
func (e *Engine) binding(ctx context.Context) token.Binding {
	return token.Binding{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
}

// IssueToken signs a token of the given type, bound to the client the
// context carriers describe.
func (e *Engine) IssueToken(ctx context.Context, typ token.Type, subject token.Subject) (string, *token.Claims, error) {
	if e == nil || e.tokens == nil {
		return "", nil, ErrEngineNotReady
	}

	signed, claims, err := e.tokens.Issue(ctx, typ, subject, e.binding(ctx))
	if err != nil {
		return "", nil, err
	}

	e.metricInc(MetricTokenIssued)
	return signed, claims, nil
}

// VerifyToken verifies a presented token against the expected type and the
// client the context carriers describe.
func (e *Engine) VerifyToken(ctx context.Context, tokenString string, expected token.Type) (*token.Claims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(ctx, tokenString, expected, e.binding(ctx))
	if err != nil {
		e.metricInc(MetricTokenVerifyFail)
		if errors.Is(err, token.ErrFingerprintMismatch) {
			e.metricInc(MetricFingerprintMismatch)
			e.emitAudit(ctx, auditEventFingerprintMismatch, false, "", "", err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricTokenVerifyOK)
	return claims, nil
}

// RefreshToken exchanges a valid refresh token for a fresh access token.
// The refresh token is not rotated.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (string, *token.Claims, error) {
	if e == nil || e.tokens == nil {
		return "", nil, ErrEngineNotReady
	}

	signed, claims, err := e.tokens.Refresh(ctx, refreshToken, e.binding(ctx))
	if err != nil {
		e.metricInc(MetricTokenVerifyFail)
		if errors.Is(err, token.ErrFingerprintMismatch) {
			e.metricInc(MetricFingerprintMismatch)
			e.emitAudit(ctx, auditEventFingerprintMismatch, false, "", "", err, nil)
		}
		return "", nil, err
	}

	e.metricInc(MetricTokenRefreshed)
	return signed, claims, nil
}

// RevokeToken invalidates a single token. Returns false without error when
// the token had already expired or been revoked.
func (e *Engine) RevokeToken(ctx context.Context, tokenString string) (bool, error) {
	if e == nil || e.tokens == nil {
		return false, ErrEngineNotReady
	}

	existed, err := e.tokens.Revoke(ctx, tokenString)
	if err != nil {
		return false, err
	}
	if existed {
		e.metricInc(MetricTokenRevoked)
		e.emitAudit(ctx, auditEventTokenRevoked, true, "", "", nil, nil)
	}
	return existed, nil
}

// RevokeSubjectTokens invalidates every outstanding token for a subject and
// reports how many were live.
func (e *Engine) RevokeSubjectTokens(ctx context.Context, subjectID string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.tokens.RevokeAllForSubject(ctx, subjectID)
	if err != nil {
		return revoked, err
	}

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokensRevokedAll, true, subjectID, "", nil, func() map[string]string {
		return map[string]string{
			"revoked": strconv.Itoa(revoked),
		}
	})
	return revoked, nil
}
