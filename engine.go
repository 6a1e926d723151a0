package admission

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/creditsys/admission/kv"
	"github.com/creditsys/admission/ratelimit"
	"github.com/creditsys/admission/token"
)

// Engine is the admission core: rate limiting, ban enforcement, and token
// verification behind one call. Build it with [New]; a built Engine is safe
// for concurrent use and holds no per-request state. All counters, bans,
// and token validity live in the KV store, so any number of replicas built
// against the same store share one view.
type Engine struct {
	config  Config
	store   *kv.Client
	limiter *ratelimit.Limiter
	tokens  *token.Manager
	audit   *auditDispatcher
	metrics *Metrics
}

// Close flushes and stops the audit dispatcher. The Redis connection is
// released only when the builder dialed it; injected clients stay open for
// their owner.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}

// AuditDropped reports how many audit events were shed since start.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of all counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// Admit runs the full admission sequence for one request: verify an
// attached token (once), count the request under every applicable
// dimension, and map the outcome.
//
// The returned error classifies rejections: ErrBanned for active bans,
// ErrRateLimited for exhausted windows, ErrTokenRequired plus the token
// package's verification errors when RequireAuth is set. Ban and limit
// rejections win over authentication ones. The AdmitResult is non-nil
// whenever the limiter ran, including on rejections, so callers can always
// surface rate limit headers.
//
// A store outage fails open for rate limiting and closed for token
// verification: anonymous traffic keeps flowing, authenticated claims are
// never invented.
func (e *Engine) Admit(ctx context.Context, req AdmitRequest) (*AdmitResult, error) {
	if e == nil || e.limiter == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	if req.ClientIP != "" {
		ctx = WithClientIP(ctx, req.ClientIP)
	}
	if req.UserAgent != "" {
		ctx = WithUserAgent(ctx, req.UserAgent)
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricCheckLatency, time.Since(start))
	}()

	result := &AdmitResult{}
	binding := token.Binding{IP: req.ClientIP, UserAgent: req.UserAgent}

	// One verification, reused for the user dimension and the caller.
	var verifyErr error
	if req.BearerToken != "" {
		claims, err := e.tokens.Verify(ctx, req.BearerToken, req.TokenType, binding)
		if err != nil {
			verifyErr = err
			e.metricInc(MetricTokenVerifyFail)
			switch {
			case errors.Is(err, token.ErrFingerprintMismatch):
				e.metricInc(MetricFingerprintMismatch)
				e.emitAudit(ctx, auditEventFingerprintMismatch, false, "", "", err, func() map[string]string {
					return map[string]string{"user_agent": req.UserAgent}
				})
			case errors.Is(err, kv.ErrStoreUnavailable):
				log.Print("admission: token verification unavailable, store unreachable")
			}
		} else {
			result.Claims = claims
			e.metricInc(MetricTokenVerifyOK)
		}
	}

	ids := make([]ratelimit.Identifier, 0, 3)
	if req.ClientIP != "" {
		ids = append(ids, ratelimit.IP(req.ClientIP))
	}
	if result.Claims != nil {
		ids = append(ids, ratelimit.User(result.Claims.Subject))
	}
	if req.APIKey != "" {
		ids = append(ids, ratelimit.APIKey(req.APIKey))
	}

	decision := e.limiter.CheckAll(ctx, ids...)
	result.Decision = decision

	if decision.FailedOpen {
		e.metricInc(MetricStoreFailOpen)
		log.Print("admission: rate limit check failed open, store unreachable")
	}

	switch decision.Outcome {
	case ratelimit.OutcomeBanned:
		e.metricInc(MetricCheckBanned)
		e.emitAudit(ctx, auditEventBannedRequestBlocked, false, subjectOf(result.Claims), identifierString(decision.Identifier), ErrBanned, func() map[string]string {
			return map[string]string{
				"banned_until": decision.BannedUntil.UTC().Format(time.RFC3339),
			}
		})
		return result, ErrBanned

	case ratelimit.OutcomeDenied:
		e.metricInc(MetricCheckDenied)
		if decision.BanIssued {
			e.metricInc(MetricBanIssued)
			e.emitAudit(ctx, auditEventBanIssued, true, subjectOf(result.Claims), identifierString(decision.Identifier), nil, func() map[string]string {
				return map[string]string{
					"banned_until": decision.BannedUntil.UTC().Format(time.RFC3339),
				}
			})
		}
		e.emitAudit(ctx, auditEventRateLimitExceeded, false, subjectOf(result.Claims), identifierString(decision.Identifier), ErrRateLimited, func() map[string]string {
			return map[string]string{
				"limit": strconv.Itoa(decision.Limit),
			}
		})
		return result, ErrRateLimited
	}

	if req.RequireAuth {
		if req.BearerToken == "" {
			return result, ErrTokenRequired
		}
		if verifyErr != nil {
			return result, verifyErr
		}
	}

	e.metricInc(MetricCheckAllowed)
	return result, nil
}

func subjectOf(claims *token.Claims) string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}

func identifierString(id ratelimit.Identifier) string {
	if id.Value == "" {
		return ""
	}
	return string(id.Type) + ":" + id.Value
}
