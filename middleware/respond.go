package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/creditsys/admission"
)

type errorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeRateHeaders(h http.Header, result *admission.AdmitResult) {
	if result == nil {
		return
	}

	d := result.Decision
	// Remaining -1 means the request was not counted; there is no budget
	// to report.
	if d.Limit <= 0 || d.Remaining < 0 {
		return
	}

	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func deny(w http.ResponseWriter, r *http.Request, result *admission.AdmitResult, err error, o options) {
	status := statusOf(err)

	retryAfter := 0
	if status == http.StatusTooManyRequests || status == http.StatusForbidden {
		if result != nil && result.Decision.RetryAfter > 0 {
			retryAfter = int(math.Ceil(result.Decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			if o.headerMode != HeadersNever {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			}
		}
	}

	if o.onDenied != nil {
		o.onDenied(w, r, result, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorCode(err), RetryAfter: retryAfter})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, admission.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, admission.ErrBanned):
		return http.StatusForbidden
	case errors.Is(err, admission.ErrStoreUnavailable),
		errors.Is(err, admission.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// errorCode names the rejection for the response body. Token faults beyond
// expiry collapse into one code: the audit trail keeps the detail, the
// client does not need it.
func errorCode(err error) string {
	switch {
	case errors.Is(err, admission.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, admission.ErrBanned):
		return "banned"
	case errors.Is(err, admission.ErrTokenRequired):
		return "token_required"
	case errors.Is(err, admission.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, admission.ErrStoreUnavailable),
		errors.Is(err, admission.ErrEngineNotReady):
		return "backend_unavailable"
	default:
		return "token_invalid"
	}
}
