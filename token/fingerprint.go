package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Binding holds the request-origin attributes a token is tied to. Both
// fields may be empty; the fingerprint is still deterministic, it just
// binds to "no known origin".
type Binding struct {
	IP        string
	UserAgent string
}

// Fingerprint derives the stable client fingerprint embedded in tokens:
// HMAC-SHA256 over the binding attributes, keyed with the deployment salt
// so fingerprints cannot be precomputed off-platform.
func Fingerprint(salt []byte, b Binding) string {
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(b.IP))
	mac.Write([]byte{0})
	mac.Write([]byte(b.UserAgent))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// fingerprintMatch recomputes the fingerprint for the presenting request
// and compares in constant time.
func fingerprintMatch(salt []byte, b Binding, embedded string) bool {
	computed := Fingerprint(salt, b)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(embedded)) == 1
}
