package admission_test

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/creditsys/admission"
	"github.com/creditsys/admission/token"
)

// ExampleNew demonstrates engine construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := admission.DefaultConfig()
	cfg.Store.EncryptionSecret = []byte("value-encryption-secret")
	cfg.Store.EncryptionSalt = []byte("value-encryption-salt")
	cfg.Token.SigningKey = []byte("signing-key-of-32-bytes-or-more!")
	cfg.Token.FingerprintSalt = []byte("fingerprint-salt")

	engine, _ := admission.New().
		WithConfig(cfg).
		WithRedis(rdb).
		Build()
	_ = engine
}

// ExampleEngine_Admit shows the per-request entrypoint and its error classes.
func ExampleEngine_Admit() {
	var engine *admission.Engine
	_, err := engine.Admit(context.Background(), admission.AdmitRequest{
		ClientIP:    "203.0.113.4",
		UserAgent:   "example-client/1.0",
		RequireAuth: true,
		TokenType:   token.TypeAccess,
	})
	if errors.Is(err, admission.ErrRateLimited) || errors.Is(err, admission.ErrBanned) {
		_ = err // reject with 429 or 403
	}
}

// ExampleEngine_MetricsSnapshot shows how to read in-process counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *admission.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot
}
