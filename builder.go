package admission

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/creditsys/admission/kv"
	"github.com/creditsys/admission/ratelimit"
	"github.com/creditsys/admission/token"
)

// Builder assembles an [Engine]. One Build per Builder; configure, build,
// discard.
type Builder struct {
	config Config
	redis  *redis.Client
	store  *kv.Client

	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies an existing Redis client. Its lifecycle stays with the
// caller; Engine.Close will not close it.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithStore injects a prebuilt store client, skipping dialing and sealer
// construction entirely. Intended for tests.
func (b *Builder) WithStore(store *kv.Client) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the destination for audit events. Audit must also be
// enabled in the configuration for events to flow.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithAuditEnabled(enabled bool) *Builder {
	b.config.Audit.Enabled = enabled
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, connects the store, and wires the
// subsystems together.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- STORE --------
	store := b.store
	if store == nil && b.redis != nil {
		sealer, err := kv.NewSealer(
			cfg.Store.EncryptionSecret,
			cfg.Store.PreviousEncryptionSecret,
			cfg.Store.EncryptionSalt,
			cfg.Store.KDFIterations,
		)
		if err != nil {
			return nil, err
		}
		store = kv.NewWithClient(b.redis, sealer, cfg.Store.Namespace)
	}
	if store == nil {
		if cfg.Store.Addr == "" {
			return nil, errors.New("Store Addr or a redis client is required")
		}
		var err error
		store, err = kv.New(context.Background(), kv.Config{
			Addr:                     cfg.Store.Addr,
			Username:                 cfg.Store.Username,
			Password:                 cfg.Store.Password,
			DB:                       cfg.Store.DB,
			PoolSize:                 cfg.Store.PoolSize,
			MinIdleConns:             cfg.Store.MinIdleConns,
			DialTimeout:              cfg.Store.DialTimeout,
			ReadTimeout:              cfg.Store.ReadTimeout,
			WriteTimeout:             cfg.Store.WriteTimeout,
			MaxRetries:               cfg.Store.MaxRetries,
			Namespace:                cfg.Store.Namespace,
			EncryptionSecret:         cfg.Store.EncryptionSecret,
			PreviousEncryptionSecret: cfg.Store.PreviousEncryptionSecret,
			EncryptionSalt:           cfg.Store.EncryptionSalt,
			KDFIterations:            cfg.Store.KDFIterations,
		})
		if err != nil {
			return nil, err
		}
	}

	// -------- RATE LIMITER --------
	policies := make(map[ratelimit.IdentifierType]ratelimit.Policy, 3)
	if cfg.RateLimit.PerIP.Enabled {
		policies[ratelimit.TypeIP] = ratelimit.Policy{
			Requests: cfg.RateLimit.PerIP.Requests,
			Window:   cfg.RateLimit.PerIP.Window,
		}
	}
	if cfg.RateLimit.PerUser.Enabled {
		policies[ratelimit.TypeUser] = ratelimit.Policy{
			Requests: cfg.RateLimit.PerUser.Requests,
			Window:   cfg.RateLimit.PerUser.Window,
		}
	}
	if cfg.RateLimit.PerAPIKey.Enabled {
		policies[ratelimit.TypeAPIKey] = ratelimit.Policy{
			Requests: cfg.RateLimit.PerAPIKey.Requests,
			Window:   cfg.RateLimit.PerAPIKey.Window,
		}
	}

	limiter := ratelimit.New(store, ratelimit.Config{
		Policies: policies,
		Ban: ratelimit.BanPolicy{
			Threshold:        cfg.Ban.Threshold,
			Window:           cfg.Ban.Window,
			BaseDuration:     cfg.Ban.BaseDuration,
			EscalationFactor: cfg.Ban.EscalationFactor,
			MaxDuration:      cfg.Ban.MaxDuration,
			OffenseMemory:    cfg.Ban.OffenseMemory,
		},
	})

	// -------- TOKEN MANAGER --------
	tokens, err := token.NewManager(store, token.Config{
		SigningMethod:   token.SigningMethod(cfg.Token.SigningMethod),
		SigningKey:      cloneBytes(cfg.Token.SigningKey),
		VerifyKey:       cloneBytes(cfg.Token.VerifyKey),
		Issuer:          cfg.Token.Issuer,
		Leeway:          cfg.Token.Leeway,
		AccessTTL:       cfg.Token.AccessTTL,
		RefreshTTL:      cfg.Token.RefreshTTL,
		WebsocketTTL:    cfg.Token.WebsocketTTL,
		FingerprintSalt: cloneBytes(cfg.Token.FingerprintSalt),
	})
	if err != nil {
		return nil, err
	}

	// -------- AUDIT / METRICS --------
	metrics := NewMetrics(cfg.Metrics)
	audit := newAuditDispatcher(cfg.Audit, b.auditSink, func() {
		metrics.Inc(MetricAuditDropped)
	})

	engine := &Engine{
		config:  cfg,
		store:   store,
		limiter: limiter,
		tokens:  tokens,
		audit:   audit,
		metrics: metrics,
	}

	b.built = true

	return engine, nil
}
