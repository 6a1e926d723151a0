package admission

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Zero values mean "use the
// default" for sizes and timeouts; secret material has no default and must
// be supplied by the caller. Config values are copied at Build time and
// never mutated afterwards.
type Config struct {
	Store     StoreConfig
	RateLimit RateLimitConfig
	Ban       BanConfig
	Token     TokenConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig holds the Redis connection settings and the encryption
// material for values at rest. Secrets arrive as bytes, already resolved;
// the engine never reads key files.
type StoreConfig struct {
	Addr     string
	Username string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int

	// Namespace prefixes every key this engine writes.
	Namespace string

	EncryptionSecret         []byte
	PreviousEncryptionSecret []byte
	EncryptionSalt           []byte
	KDFIterations            int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// Quota is the request budget for one identifier dimension.
type Quota struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// RateLimitConfig sets the per-dimension budgets. A disabled quota means
// requests are not counted under that dimension at all.
type RateLimitConfig struct {
	PerIP     Quota
	PerUser   Quota
	PerAPIKey Quota
}

// BanConfig controls violation tracking and automatic ban escalation.
// Threshold 0 disables automatic bans.
type BanConfig struct {
	Threshold        int
	Window           time.Duration
	BaseDuration     time.Duration
	EscalationFactor float64
	MaxDuration      time.Duration
	OffenseMemory    time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds signing material and per-type token lifetimes.
type TokenConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	SigningKey    []byte
	VerifyKey     []byte

	Issuer string
	Leeway time.Duration

	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	WebsocketTTL time.Duration

	FingerprintSalt []byte
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit pipeline.
type AuditConfig struct {
	Enabled    bool
	BufferSize int

	// DropIfFull sheds events instead of blocking the request path when the
	// buffer is full. Dropped events are counted.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the reference deployment's settings. Secret
// material is left empty and must be filled in before Build.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Addr:          "localhost:6379",
			PoolSize:      10,
			DialTimeout:   2 * time.Second,
			ReadTimeout:   500 * time.Millisecond,
			WriteTimeout:  500 * time.Millisecond,
			MaxRetries:    3,
			Namespace:     "adm",
			KDFIterations: 100000,
		},
		RateLimit: RateLimitConfig{
			PerIP:     Quota{Enabled: true, Requests: 100, Window: time.Minute},
			PerUser:   Quota{Enabled: true, Requests: 1000, Window: time.Hour},
			PerAPIKey: Quota{Enabled: true, Requests: 10000, Window: time.Hour},
		},
		Ban: BanConfig{
			Threshold:        5,
			Window:           5 * time.Minute,
			BaseDuration:     time.Hour,
			EscalationFactor: 2.0,
			MaxDuration:      24 * time.Hour,
			OffenseMemory:    24 * time.Hour,
		},
		Token: TokenConfig{
			SigningMethod: "hs256",
			Leeway:        30 * time.Second,
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    24 * time.Hour,
			WebsocketTTL:  30 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Store.EncryptionSecret = cloneBytes(cfg.Store.EncryptionSecret)
	out.Store.PreviousEncryptionSecret = cloneBytes(cfg.Store.PreviousEncryptionSecret)
	out.Store.EncryptionSalt = cloneBytes(cfg.Store.EncryptionSalt)
	out.Token.SigningKey = cloneBytes(cfg.Token.SigningKey)
	out.Token.VerifyKey = cloneBytes(cfg.Token.VerifyKey)
	out.Token.FingerprintSalt = cloneBytes(cfg.Token.FingerprintSalt)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internal consistency. Build calls
// it; exported so callers can fail fast before dialing anything.
func (c *Config) Validate() error {
	// Store
	if len(c.Store.EncryptionSecret) == 0 {
		return errors.New("Store EncryptionSecret is required")
	}
	if len(c.Store.EncryptionSalt) == 0 {
		return errors.New("Store EncryptionSalt is required")
	}
	if c.Store.KDFIterations < 0 {
		return errors.New("Store KDFIterations must be >= 0")
	}
	if c.Store.PoolSize < 0 {
		return errors.New("Store PoolSize must be >= 0")
	}
	if c.Store.DialTimeout < 0 || c.Store.ReadTimeout < 0 || c.Store.WriteTimeout < 0 {
		return errors.New("Store timeouts must be >= 0")
	}
	if c.Store.MaxRetries < 0 {
		return errors.New("Store MaxRetries must be >= 0")
	}

	// Rate limit
	if err := validateQuota("PerIP", c.RateLimit.PerIP); err != nil {
		return err
	}
	if err := validateQuota("PerUser", c.RateLimit.PerUser); err != nil {
		return err
	}
	if err := validateQuota("PerAPIKey", c.RateLimit.PerAPIKey); err != nil {
		return err
	}

	// Ban
	if c.Ban.Threshold < 0 {
		return errors.New("Ban Threshold must be >= 0")
	}
	if c.Ban.Threshold > 0 {
		if c.Ban.Window <= 0 {
			return errors.New("Ban Window must be > 0")
		}
		if c.Ban.BaseDuration <= 0 {
			return errors.New("Ban BaseDuration must be > 0")
		}
		if c.Ban.EscalationFactor < 1 {
			return errors.New("Ban EscalationFactor must be >= 1")
		}
		if c.Ban.MaxDuration < 0 {
			return errors.New("Ban MaxDuration must be >= 0")
		}
		if c.Ban.MaxDuration > 0 && c.Ban.MaxDuration < c.Ban.BaseDuration {
			return errors.New("Ban MaxDuration must be >= BaseDuration")
		}
		if c.Ban.OffenseMemory <= 0 {
			return errors.New("Ban OffenseMemory must be > 0")
		}
	}

	// Token
	if c.Token.SigningMethod != "hs256" && c.Token.SigningMethod != "ed25519" {
		return errors.New("unsupported Token SigningMethod")
	}
	if c.Token.SigningMethod == "hs256" && len(c.Token.SigningKey) == 0 {
		return errors.New("hs256 requires Token SigningKey")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.VerifyKey) == 0 {
		return errors.New("ed25519 requires Token VerifyKey")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 || c.Token.WebsocketTTL <= 0 {
		return errors.New("Token TTLs must be > 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be within [0, 2m]")
	}
	if len(c.Token.FingerprintSalt) == 0 {
		return errors.New("Token FingerprintSalt is required")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func validateQuota(name string, q Quota) error {
	if !q.Enabled {
		return nil
	}
	if q.Requests <= 0 {
		return errors.New("RateLimit " + name + " Requests must be > 0")
	}
	if q.Window <= 0 {
		return errors.New("RateLimit " + name + " Window must be > 0")
	}
	return nil
}
