package admission

import (
	"testing"
	"time"
)

func lintTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Store.EncryptionSecret = []byte("lint-secret")
	cfg.Store.EncryptionSalt = []byte("lint-salt")
	cfg.Token.SigningKey = []byte("lint-signing-key-32-bytes-long!!")
	cfg.Token.FingerprintSalt = []byte("lint-fingerprint-salt")
	return cfg
}

func TestLint_DefaultConfigNoActionableWarnings(t *testing.T) {
	cfg := lintTestConfig()
	ws := cfg.Lint()

	if err := ws.AsError(LintWarn); err != nil {
		t.Fatalf("default config should lint clean at warn level, got %v", err)
	}
	// Audit is off by default; that surfaces as info, not as a defect.
	if !containsCode(ws.Codes(), "audit_disabled") {
		t.Error("expected audit_disabled info finding")
	}
}

func TestLint_ShortSigningKey(t *testing.T) {
	cfg := lintTestConfig()
	cfg.Token.SigningKey = []byte("weak-key")
	ws := cfg.Lint()

	if !containsCode(ws.Codes(), "signing_key_short") {
		t.Error("expected signing_key_short warning")
	}
	if err := ws.AsError(LintHigh); err == nil {
		t.Error("expected AsError(LintHigh) to return error for weak key")
	}
}

func TestLint_LowKDFIterations(t *testing.T) {
	cfg := lintTestConfig()
	cfg.Store.KDFIterations = 1000
	ws := cfg.Lint()
	if !containsCode(ws.Codes(), "kdf_iterations_low") {
		t.Error("expected kdf_iterations_low warning")
	}
}

func TestLint_LargeLeeway(t *testing.T) {
	cfg := lintTestConfig()
	cfg.Token.Leeway = 90 * time.Second
	ws := cfg.Lint()
	if !containsCode(ws.Codes(), "leeway_large") {
		t.Error("expected leeway_large warning")
	}
}

func TestLint_LongAccessTTL(t *testing.T) {
	cfg := lintTestConfig()
	cfg.Token.AccessTTL = 2 * time.Hour
	ws := cfg.Lint()
	if !containsCode(ws.Codes(), "access_ttl_long") {
		t.Error("expected access_ttl_long warning")
	}
}

func TestLint_LongRefreshTTL(t *testing.T) {
	cfg := lintTestConfig()
	cfg.Token.RefreshTTL = 30 * 24 * time.Hour
	ws := cfg.Lint()
	if !containsCode(ws.Codes(), "refresh_ttl_long") {
		t.Error("expected refresh_ttl_long warning")
	}
}

func TestLint_AllRateLimitsDisabled(t *testing.T) {
	cfg := lintTestConfig()
	cfg.RateLimit.PerIP.Enabled = false
	cfg.RateLimit.PerUser.Enabled = false
	cfg.RateLimit.PerAPIKey.Enabled = false
	ws := cfg.Lint()

	if !containsCode(ws.Codes(), "rate_limits_disabled") {
		t.Error("expected rate_limits_disabled warning")
	}
	if err := ws.AsError(LintHigh); err == nil {
		t.Error("expected AsError(LintHigh) to return error with no active dimension")
	}
}

func TestLint_OffenseMemoryShorterThanBan(t *testing.T) {
	cfg := lintTestConfig()
	cfg.Ban.OffenseMemory = 30 * time.Minute
	cfg.Ban.BaseDuration = time.Hour
	ws := cfg.Lint()
	if !containsCode(ws.Codes(), "offense_memory_short") {
		t.Error("expected offense_memory_short warning")
	}
}

func TestLint_BansDisabledIsInfoOnly(t *testing.T) {
	cfg := lintTestConfig()
	cfg.Ban.Threshold = 0
	ws := cfg.Lint()

	if !containsCode(ws.Codes(), "bans_disabled") {
		t.Error("expected bans_disabled finding")
	}
	if err := ws.AsError(LintWarn); err != nil {
		t.Fatalf("disabling bans is a choice, not a defect: %v", err)
	}
}

func TestLint_BySeverity(t *testing.T) {
	cfg := lintTestConfig()
	cfg.Token.SigningKey = []byte("weak-key")
	cfg.Token.Leeway = 90 * time.Second
	ws := cfg.Lint()

	high := ws.BySeverity(LintHigh)
	if len(high) == 0 {
		t.Fatal("expected at least one HIGH severity warning")
	}
	for _, w := range high {
		if w.Severity < LintHigh {
			t.Errorf("BySeverity(LintHigh) returned warning with severity %s", w.Severity)
		}
	}
}

// helpers

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
