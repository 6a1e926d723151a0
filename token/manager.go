package token

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/creditsys/admission/kv"
)

var (
	// ErrMalformed is returned for input that is not a well-formed token.
	ErrMalformed = errors.New("token malformed")
	// ErrSignature is returned when the signature does not verify.
	ErrSignature = errors.New("token signature invalid")
	// ErrExpired is returned when the token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrRevoked is returned when the validity entry is gone: the token was
	// revoked, or it expired and the ledger already forgot it. Callers
	// cannot distinguish the two, which is deliberate.
	ErrRevoked = errors.New("token revoked")
	// ErrTypeMismatch is returned when the token type does not match the
	// expected one.
	ErrTypeMismatch = errors.New("token type mismatch")
	// ErrFingerprintMismatch is returned when the presenting client's
	// fingerprint differs from the one embedded at issuance. Treat the
	// token as stolen.
	ErrFingerprintMismatch = errors.New("client fingerprint mismatch")
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// Config holds signing material, per-type lifetimes, and the fingerprint
// salt. All of it is already-resolved secret material; the manager never
// loads keys from disk.
type Config struct {
	SigningMethod SigningMethod
	// SigningKey is the HMAC secret for hs256 or the Ed25519 private key.
	SigningKey []byte
	// VerifyKey is the Ed25519 public key; unused for hs256.
	VerifyKey []byte

	Issuer       string
	Leeway       time.Duration
	MaxFutureIAT time.Duration

	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	WebsocketTTL time.Duration

	FingerprintSalt []byte
}

// Manager issues and verifies tokens against the validity ledger. Safe for
// concurrent use.
type Manager struct {
	store  *kv.Client
	config Config
}

// NewManager validates the configuration and returns a ready [Manager].
func NewManager(store *kv.Client, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("token manager requires a store client")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.WebsocketTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if len(cfg.FingerprintSalt) == 0 {
		return nil, errors.New("fingerprint salt required")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.SigningKey) == 0 {
			return nil, errors.New("hs256 requires a signing key")
		}
	case MethodEd25519:
		if len(cfg.SigningKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.SigningKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKey) == 0 {
			return nil, errors.New("ed25519 requires a verify key")
		}
		if _, err := parseEdPublicKey(cfg.VerifyKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{store: store, config: cfg}, nil
}

func validityKey(jti string) string {
	return "tv:" + jti
}

func subjectKey(subjectID string) string {
	return "ts:" + subjectID
}

const subjectIndexPattern = "ts:*"

type validityRecord struct {
	Subject  string    `json:"subject"`
	Type     Type      `json:"type"`
	IssuedAt time.Time `json:"issued_at"`
}

// Issue signs a token of the given type with the per-type default lifetime
// and writes its validity entry. The fingerprint of the issuing request is
// embedded in the claims.
func (m *Manager) Issue(ctx context.Context, typ Type, subject Subject, binding Binding) (string, *Claims, error) {
	return m.IssueTTL(ctx, typ, subject, binding, 0)
}

// IssueTTL is Issue with an explicit lifetime override; ttl 0 selects the
// per-type default. The ledger write happens before the token leaves this
// function: a token that cannot be revoked must never exist.
func (m *Manager) IssueTTL(ctx context.Context, typ Type, subject Subject, binding Binding, ttl time.Duration) (string, *Claims, error) {
	if !typ.valid() {
		return "", nil, errors.New("unknown token type")
	}
	if subject.ID == "" {
		return "", nil, errors.New("subject id required")
	}
	if ttl <= 0 {
		ttl = m.ttlFor(typ)
	}

	now := time.Now()
	claims := &Claims{
		Type:        typ,
		Fingerprint: Fingerprint(m.config.FingerprintSalt, binding),
		Extra:       subject.Extra,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.ID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(m.method(), claims)
	signKey, err := m.signKey()
	if err != nil {
		return "", nil, err
	}
	signed, err := tok.SignedString(signKey)
	if err != nil {
		return "", nil, err
	}

	payload, err := json.Marshal(validityRecord{Subject: subject.ID, Type: typ, IssuedAt: now})
	if err != nil {
		return "", nil, err
	}
	if err := m.store.SetWithIndex(ctx, validityKey(claims.ID), payload, ttl, subjectKey(subject.ID), claims.ID); err != nil {
		return "", nil, err
	}

	return signed, claims, nil
}

func (m *Manager) ttlFor(typ Type) time.Duration {
	switch typ {
	case TypeRefresh:
		return m.config.RefreshTTL
	case TypeWebsocket:
		return m.config.WebsocketTTL
	default:
		return m.config.AccessTTL
	}
}

// Verify checks a presented token end to end: signature, expiry, the
// validity entry, the expected type, and finally the client fingerprint
// recomputed from the presenting request. Store failures surface as errors,
// never as acceptance; verification fails CLOSED.
//
//	Performance: 1 Redis EXISTS after local checks.
func (m *Manager) Verify(ctx context.Context, tokenString string, expected Type, binding Binding) (*Claims, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrMalformed
	}

	alive, err := m.store.Exists(ctx, validityKey(claims.ID))
	if err != nil {
		return nil, err
	}
	if !alive {
		return nil, ErrRevoked
	}

	if expected != TypeAny && claims.Type != expected {
		return nil, ErrTypeMismatch
	}

	if !fingerprintMatch(m.config.FingerprintSalt, binding, claims.Fingerprint) {
		return nil, ErrFingerprintMismatch
	}

	return claims, nil
}

// Refresh verifies a refresh token and mints a fresh access token for the
// same subject. The new fingerprint is computed from the current request,
// never copied from the refresh token, and the refresh token itself is not
// rotated: it stays valid until it expires or is revoked.
func (m *Manager) Refresh(ctx context.Context, refreshToken string, binding Binding) (string, *Claims, error) {
	claims, err := m.Verify(ctx, refreshToken, TypeRefresh, binding)
	if err != nil {
		return "", nil, err
	}

	return m.Issue(ctx, TypeAccess, Subject{ID: claims.Subject, Extra: claims.Extra}, binding)
}

// Revoke deletes the token's validity entry and reports whether one
// existed. Revoking twice, or revoking an already-expired token, is a
// quiet no-op. The signature must still verify; unauthenticated input
// cannot probe the ledger.
func (m *Manager) Revoke(ctx context.Context, tokenString string) (bool, error) {
	claims, err := m.parseRevocable(tokenString)
	if err != nil {
		return false, err
	}
	if claims.ID == "" {
		return false, ErrMalformed
	}

	return m.store.DeleteWithIndex(ctx, validityKey(claims.ID), subjectKey(claims.Subject), claims.ID)
}

// RevokeAllForSubject deletes every outstanding validity entry for a
// subject and clears the subject index.
//
// Not fully atomic: a token issued between the index read and the delete
// survives this call. The window is narrow; the next sweep or revoke-all
// catches the stray.
func (m *Manager) RevokeAllForSubject(ctx context.Context, subjectID string) (int, error) {
	if subjectID == "" {
		return 0, errors.New("subject id required")
	}

	jtis, err := m.store.SMembers(ctx, subjectKey(subjectID))
	if err != nil {
		return 0, err
	}

	var removed int64
	if len(jtis) > 0 {
		keys := make([]string, len(jtis))
		for i, jti := range jtis {
			keys[i] = validityKey(jti)
		}
		removed, err = m.store.Delete(ctx, keys...)
		if err != nil {
			return 0, err
		}
	}

	if _, err := m.store.Delete(ctx, subjectKey(subjectID)); err != nil {
		return int(removed), err
	}
	return int(removed), nil
}

// Record is the introspection view of one outstanding token. It carries no
// signature or fingerprint material.
type Record struct {
	ID       string
	Subject  string
	Type     Type
	IssuedAt time.Time
}

// ActiveTokens lists a subject's live tokens from the validity ledger,
// oldest first. Index members whose entry already expired are skipped, not
// repaired; CleanupExpired owns that.
func (m *Manager) ActiveTokens(ctx context.Context, subjectID string) ([]Record, error) {
	if subjectID == "" {
		return nil, errors.New("subject id required")
	}

	jtis, err := m.store.SMembers(ctx, subjectKey(subjectID))
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(jtis))
	for _, jti := range jtis {
		data, err := m.store.Get(ctx, validityKey(jti))
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var rec validityRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, Record{ID: jti, Subject: rec.Subject, Type: rec.Type, IssuedAt: rec.IssuedAt})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

// CleanupExpired walks the subject indices and drops members whose
// validity entry has expired. Housekeeping only: the store's TTLs already
// fence validity, this just keeps the indices from accumulating dead ids.
// Admin-only O(n) sweep; never call it on a request path.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		indexKeys, next, err := m.store.Scan(ctx, cursor, subjectIndexPattern, 256)
		if err != nil {
			return removed, err
		}

		for _, indexKey := range indexKeys {
			jtis, err := m.store.SMembers(ctx, indexKey)
			if err != nil {
				return removed, err
			}
			if len(jtis) == 0 {
				continue
			}

			keys := make([]string, len(jtis))
			for i, jti := range jtis {
				keys[i] = validityKey(jti)
			}
			alive, err := m.store.ExistsMany(ctx, keys...)
			if err != nil {
				return removed, err
			}

			var stale []string
			for i, ok := range alive {
				if !ok {
					stale = append(stale, jtis[i])
				}
			}
			if len(stale) == 0 {
				continue
			}
			if err := m.store.SRem(ctx, indexKey, stale...); err != nil {
				return removed, err
			}
			removed += len(stale)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

func (m *Manager) parse(tokenString string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenString, &Claims{}, m.keyFunc)
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	if claims.IssuedAt != nil && m.config.MaxFutureIAT > 0 {
		if claims.IssuedAt.Time.After(time.Now().Add(m.config.MaxFutureIAT)) {
			return nil, ErrMalformed
		}
	}

	return claims, nil
}

// parseRevocable verifies the signature but skips claims validation, so an
// expired token can still be revoked.
func (m *Manager) parseRevocable(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	tok, err := parser.ParseWithClaims(tokenString, &Claims{}, m.keyFunc)
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != m.method().Alg() {
		return nil, ErrSignature
	}
	return m.verifyKey()
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	default:
		return ErrMalformed
	}
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.SigningKey, nil
	default:
		return parseEdPrivateKey(m.config.SigningKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.SigningKey, nil
	default:
		return parseEdPublicKey(m.config.VerifyKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
