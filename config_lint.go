package admission

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LintSeverity grades advisory findings from Config.Lint. Lint never blocks
// a build; Validate owns the hard failures.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintHigh:
		return "high"
	case LintWarn:
		return "warn"
	default:
		return "info"
	}
}

// Warning is one advisory finding. Code is stable and machine-checkable,
// Message is for humans.
type Warning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type Warnings []Warning

func (ws Warnings) Codes() []string {
	codes := make([]string, len(ws))
	for i, w := range ws {
		codes[i] = w.Code
	}
	return codes
}

// BySeverity returns the findings at or above min.
func (ws Warnings) BySeverity(min LintSeverity) Warnings {
	var out Warnings
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError folds the findings at or above min into a single error, nil when
// none qualify. Deployments that want lint findings to be fatal call this
// right after Validate.
func (ws Warnings) AsError(min LintSeverity) error {
	qualifying := ws.BySeverity(min)
	if len(qualifying) == 0 {
		return nil
	}
	return errors.New("config lint: " + strings.Join(qualifying.Codes(), ", "))
}

// Lint reports posture findings on settings Validate accepts: weakened
// crypto, budgets that cannot throttle, escalation that cannot escalate.
func (c *Config) Lint() Warnings {
	var ws Warnings

	if c.Token.SigningMethod == "hs256" && len(c.Token.SigningKey) > 0 && len(c.Token.SigningKey) < 32 {
		ws = append(ws, Warning{
			Code:     "signing_key_short",
			Severity: LintHigh,
			Message:  fmt.Sprintf("hs256 signing key is %d bytes, use at least 32", len(c.Token.SigningKey)),
		})
	}
	if c.Store.KDFIterations > 0 && c.Store.KDFIterations < 100000 {
		ws = append(ws, Warning{
			Code:     "kdf_iterations_low",
			Severity: LintHigh,
			Message:  fmt.Sprintf("store KDF iterations %d is below 100000", c.Store.KDFIterations),
		})
	}
	if !c.RateLimit.PerIP.Enabled && !c.RateLimit.PerUser.Enabled && !c.RateLimit.PerAPIKey.Enabled {
		ws = append(ws, Warning{
			Code:     "rate_limits_disabled",
			Severity: LintHigh,
			Message:  "every identifier dimension is disabled, admission never throttles",
		})
	}

	if c.Token.Leeway > time.Minute {
		ws = append(ws, Warning{
			Code:     "leeway_large",
			Severity: LintWarn,
			Message:  fmt.Sprintf("clock leeway %s extends every token's life", c.Token.Leeway),
		})
	}
	if c.Token.AccessTTL > time.Hour {
		ws = append(ws, Warning{
			Code:     "access_ttl_long",
			Severity: LintWarn,
			Message:  fmt.Sprintf("access tokens live %s, revocation lag grows with it", c.Token.AccessTTL),
		})
	}
	if c.Token.RefreshTTL > 7*24*time.Hour {
		ws = append(ws, Warning{
			Code:     "refresh_ttl_long",
			Severity: LintWarn,
			Message:  fmt.Sprintf("refresh tokens live %s", c.Token.RefreshTTL),
		})
	}
	if c.Ban.Threshold > 0 && c.Ban.OffenseMemory < c.Ban.BaseDuration {
		ws = append(ws, Warning{
			Code:     "offense_memory_short",
			Severity: LintWarn,
			Message:  "offense memory expires before a first ban ends, repeat offenders never escalate",
		})
	}

	if c.Ban.Threshold <= 0 {
		ws = append(ws, Warning{
			Code:     "bans_disabled",
			Severity: LintInfo,
			Message:  "violations are not tracked and no bans are issued",
		})
	}
	if !c.Audit.Enabled {
		ws = append(ws, Warning{
			Code:     "audit_disabled",
			Severity: LintInfo,
			Message:  "denials and bans leave no audit trail",
		})
	}

	return ws
}
