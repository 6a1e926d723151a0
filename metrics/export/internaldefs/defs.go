package internaldefs

import (
	"github.com/creditsys/admission"
)

// CounterDef binds a core metric ID to its stable exported name.
type CounterDef struct {
	ID   admission.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its stable exported name.
type HistogramDef struct {
	ID   admission.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in emission order. The audit
// dropped counter is not here: it is read from the dispatcher, not the
// metrics table, so it stays live even when metrics are disabled.
var CounterDefs = []CounterDef{
	{ID: admission.MetricCheckAllowed, Name: "admission_check_allowed_total", Help: "Requests admitted."},
	{ID: admission.MetricCheckDenied, Name: "admission_check_denied_total", Help: "Requests denied by an exhausted rate limit window."},
	{ID: admission.MetricCheckBanned, Name: "admission_check_banned_total", Help: "Requests blocked by an active ban."},
	{ID: admission.MetricBanIssued, Name: "admission_ban_issued_total", Help: "Automatic bans issued."},
	{ID: admission.MetricStoreFailOpen, Name: "admission_store_fail_open_total", Help: "Rate limit checks that failed open during store outages."},
	{ID: admission.MetricTokenIssued, Name: "admission_token_issued_total", Help: "Tokens issued."},
	{ID: admission.MetricTokenVerifyOK, Name: "admission_token_verify_ok_total", Help: "Successful token verifications."},
	{ID: admission.MetricTokenVerifyFail, Name: "admission_token_verify_fail_total", Help: "Failed token verifications."},
	{ID: admission.MetricFingerprintMismatch, Name: "admission_fingerprint_mismatch_total", Help: "Tokens rejected for a client fingerprint mismatch."},
	{ID: admission.MetricTokenRefreshed, Name: "admission_token_refreshed_total", Help: "Access tokens minted from refresh tokens."},
	{ID: admission.MetricTokenRevoked, Name: "admission_token_revoked_total", Help: "Token revocation operations."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: admission.MetricCheckLatency, Name: "admission_check_latency_seconds", Help: "Admission check latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// core histogram's millisecond thresholds. Both exporters emit them as the
// le label value.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form the
// Prometheus histogram convention requires.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
