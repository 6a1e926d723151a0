package admission

import (
	"context"
	"time"

	"github.com/creditsys/admission/ratelimit"
)

// IsBanned reports whether the identifier has an active ban and when it
// lifts. Unlike the request path, store errors surface here.
func (e *Engine) IsBanned(ctx context.Context, id ratelimit.Identifier) (bool, time.Time, error) {
	if e == nil || e.limiter == nil {
		return false, time.Time{}, ErrEngineNotReady
	}
	return e.limiter.IsBanned(ctx, id)
}

// Unban lifts an active ban. The identifier's offense history is kept, so
// a prompt reoffense escalates instead of starting over.
func (e *Engine) Unban(ctx context.Context, id ratelimit.Identifier) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}

	if err := e.limiter.Unban(ctx, id); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventUnban, true, "", identifierString(id), nil, nil)
	return nil
}

// ResetLimit wipes all limiter state for an identifier: the current window,
// violations, ban, and offense history.
func (e *Engine) ResetLimit(ctx context.Context, id ratelimit.Identifier) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}

	if err := e.limiter.Reset(ctx, id); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventLimitReset, true, "", identifierString(id), nil, nil)
	return nil
}

// CleanupExpiredTokens prunes expired entries from the token subject
// indices. Run it from a maintenance loop, not a request path.
func (e *Engine) CleanupExpiredTokens(ctx context.Context) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}
	return e.tokens.CleanupExpired(ctx)
}

// Ping verifies store connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	return e.store.Ping(ctx)
}
