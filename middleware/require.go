package middleware

import (
	"net/http"

	"github.com/creditsys/admission"
	"github.com/creditsys/admission/token"
)

// RequireAccess returns middleware that admits only requests carrying a
// live access token.
func RequireAccess(engine *admission.Engine, opts ...Option) func(http.Handler) http.Handler {
	return Admission(engine, append([]Option{RequireAuth(token.TypeAccess)}, opts...)...)
}

// RequireWebsocket guards a websocket upgrade route with a single-purpose
// websocket token. Run it on the handshake request only; frames after the
// upgrade are not admission events.
func RequireWebsocket(engine *admission.Engine, opts ...Option) func(http.Handler) http.Handler {
	return Admission(engine, append([]Option{RequireAuth(token.TypeWebsocket)}, opts...)...)
}
