package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/creditsys/admission"
	"github.com/creditsys/admission/token"
)

// Headers controls when the X-RateLimit-* response headers are written.
type Headers int

const (
	// HeadersAlways writes rate limit headers on every counted decision.
	HeadersAlways Headers = iota
	// HeadersOnDeny writes them only on rejected requests.
	HeadersOnDeny
	// HeadersNever suppresses them.
	HeadersNever
)

// DeniedHook renders a rejected request. The status headers are prepared
// before the hook runs; writing the status code and body is the hook's job,
// and the default JSON body is skipped.
type DeniedHook func(w http.ResponseWriter, r *http.Request, result *admission.AdmitResult, err error)

type options struct {
	requireAuth  bool
	tokenType    token.Type
	trustProxy   bool
	apiKeyHeader string
	headerMode   Headers
	onDenied     DeniedHook
}

// Option configures [Admission].
type Option func(*options)

// RequireAuth makes a verified bearer token of the given type mandatory.
// Use [token.TypeAny] to accept any live token type.
func RequireAuth(typ token.Type) Option {
	return func(o *options) {
		o.requireAuth = true
		o.tokenType = typ
	}
}

// TrustProxy enables client IP extraction from X-Forwarded-For. Only set
// this behind a proxy that overwrites the header; otherwise clients choose
// their own rate limit identity.
func TrustProxy() Option {
	return func(o *options) { o.trustProxy = true }
}

// APIKeyHeader changes the header the API key is read from. The default is
// X-API-Key.
func APIKeyHeader(name string) Option {
	return func(o *options) { o.apiKeyHeader = name }
}

// HeaderMode controls rate limit header emission. The default is
// [HeadersAlways].
func HeaderMode(mode Headers) Option {
	return func(o *options) { o.headerMode = mode }
}

// OnDenied installs a custom rejection renderer.
func OnDenied(hook DeniedHook) Option {
	return func(o *options) { o.onDenied = hook }
}

type claimsContextKey struct{}

// ClaimsFromContext returns the verified token claims a guard injected for
// the current request.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return claims, ok
}

// Admission returns middleware that runs every request through
// [admission.Engine.Admit]. It extracts the client IP, user agent, API key,
// and bearer token from the request, attaches the context carriers for
// downstream token issuance, and maps the engine's decision to HTTP:
// allowed requests continue with claims in the context, rejected ones get
// 429 (rate limited), 403 (banned), 401 (authentication), or 503 (engine or
// store unavailable) with a JSON body.
func Admission(engine *admission.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := options{
		apiKeyHeader: "X-API-Key",
		headerMode:   HeadersAlways,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, o.trustProxy)
			agent := r.UserAgent()

			// Carriers feed fingerprint binding for handlers that issue
			// tokens downstream of the guard.
			ctx := admission.WithUserAgent(admission.WithClientIP(r.Context(), ip), agent)

			req := admission.AdmitRequest{
				ClientIP:    ip,
				UserAgent:   agent,
				APIKey:      r.Header.Get(o.apiKeyHeader),
				RequireAuth: o.requireAuth,
				TokenType:   o.tokenType,
			}
			req.BearerToken, _ = bearerToken(r.Header.Get("Authorization"))

			result, err := engine.Admit(ctx, req)

			if o.headerMode == HeadersAlways || (o.headerMode == HeadersOnDeny && err != nil) {
				writeRateHeaders(w.Header(), result)
			}

			if err != nil {
				deny(w, r, result, err, o)
				return
			}

			if result.Claims != nil {
				ctx = context.WithValue(ctx, claimsContextKey{}, result.Claims)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	tok := value[len(bearer):]
	if tok == "" {
		return "", false
	}

	return tok, true
}

// clientIP resolves the address a request is counted under: RemoteAddr,
// unless trustProxy is set and X-Forwarded-For is present. The first
// element of the list is the original client on a proxy chain that
// overwrites the header.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := fwd
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				first = fwd[:i]
			}
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
