package admission

import (
	"time"

	"github.com/creditsys/admission/ratelimit"
)

// SecurityReport is a point-in-time summary of the protection an engine was
// built with, for startup logs and operator diagnostics. It never carries
// key material.
type SecurityReport struct {
	SigningAlgorithm    string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	WebsocketTTL        time.Duration
	KDFIterations       int
	RateLimitDimensions []string
	AutoBansActive      bool
	MaxBanDuration      time.Duration
	AuditActive         bool
	MetricsActive       bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	var dims []string
	if e.config.RateLimit.PerIP.Enabled {
		dims = append(dims, string(ratelimit.TypeIP))
	}
	if e.config.RateLimit.PerUser.Enabled {
		dims = append(dims, string(ratelimit.TypeUser))
	}
	if e.config.RateLimit.PerAPIKey.Enabled {
		dims = append(dims, string(ratelimit.TypeAPIKey))
	}

	return SecurityReport{
		SigningAlgorithm:    e.config.Token.SigningMethod,
		AccessTTL:           e.config.Token.AccessTTL,
		RefreshTTL:          e.config.Token.RefreshTTL,
		WebsocketTTL:        e.config.Token.WebsocketTTL,
		KDFIterations:       e.config.Store.KDFIterations,
		RateLimitDimensions: dims,
		AutoBansActive:      e.config.Ban.Threshold > 0,
		MaxBanDuration:      e.config.Ban.MaxDuration,
		AuditActive:         e.config.Audit.Enabled,
		MetricsActive:       e.config.Metrics.Enabled,
	}
}
