package admission

import (
	"context"
	"time"

	"github.com/creditsys/admission/token"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

// ActiveTokenCount reports how many live tokens a subject holds.
func (e *Engine) ActiveTokenCount(ctx context.Context, subjectID string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	records, err := e.tokens.ActiveTokens(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// ListActiveTokens returns the introspection view of a subject's live
// tokens: ids, types, and issue times. Signature and fingerprint material
// never leave the token layer.
func (e *Engine) ListActiveTokens(ctx context.Context, subjectID string) ([]token.Record, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	return e.tokens.ActiveTokens(ctx, subjectID)
}

// Health measures one store round trip.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.store == nil {
		return HealthStatus{}
	}

	latency, err := e.store.PingLatency(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   latency,
	}
}
