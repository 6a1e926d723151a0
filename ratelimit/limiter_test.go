package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/creditsys/admission/kv"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sealer, err := kv.NewSealer([]byte("test-secret"), nil, []byte("test-salt"), 1000)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	store := kv.NewWithClient(rdb, sealer, "")
	return New(store, cfg), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func defaultBan() BanPolicy {
	return BanPolicy{
		Threshold:        5,
		Window:           5 * time.Minute,
		BaseDuration:     time.Hour,
		EscalationFactor: 2,
		MaxDuration:      24 * time.Hour,
		OffenseMemory:    24 * time.Hour,
	}
}

func TestCheckAllowsThresholdThenDenies(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{
		Policies: map[IdentifierType]Policy{TypeIP: {Requests: 3, Window: time.Minute}},
		Ban:      defaultBan(),
	})
	defer done()
	ctx := context.Background()
	id := IP("203.0.113.9")

	for i := 1; i <= 3; i++ {
		d := limiter.Check(ctx, id)
		if !d.Allowed() {
			t.Fatalf("request %d: expected allowed, got %v", i, d.Outcome)
		}
		if d.Remaining != 3-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 3-i, d.Remaining)
		}
		if d.ResetAt.Before(time.Now()) {
			t.Fatalf("request %d: reset time must be in the future", i)
		}
	}

	d := limiter.Check(ctx, id)
	if d.Outcome != OutcomeDenied {
		t.Fatalf("request 4: expected denied, got %v", d.Outcome)
	}
	if d.Remaining != 0 {
		t.Fatalf("request 4: expected remaining 0, got %d", d.Remaining)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("request 4: expected retry-after in (0, 1m], got %v", d.RetryAfter)
	}
}

func TestCheckUncoveredTypePassesThrough(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{
		Policies: map[IdentifierType]Policy{TypeIP: {Requests: 1, Window: time.Minute}},
		Ban:      defaultBan(),
	})
	defer done()

	d := limiter.Check(context.Background(), User("u-1"))
	if !d.Allowed() {
		t.Fatalf("expected pass-through for uncovered type, got %v", d.Outcome)
	}
	if d.Remaining != -1 {
		t.Fatalf("expected uncounted remaining -1, got %d", d.Remaining)
	}
}

func TestCheckEmptyValuePassesThrough(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{
		Policies: map[IdentifierType]Policy{TypeUser: {Requests: 1, Window: time.Minute}},
		Ban:      defaultBan(),
	})
	defer done()

	d := limiter.Check(context.Background(), User(""))
	if !d.Allowed() || d.Remaining != -1 {
		t.Fatalf("empty identifier must pass through uncounted, got %+v", d)
	}
}

func TestCheckFailsOpenWhenStoreDown(t *testing.T) {
	limiter, mr, done := newTestLimiter(t, Config{
		Policies: map[IdentifierType]Policy{TypeIP: {Requests: 3, Window: time.Minute}},
		Ban:      defaultBan(),
	})
	defer done()
	mr.Close()

	d := limiter.Check(context.Background(), IP("203.0.113.9"))
	if !d.Allowed() {
		t.Fatalf("expected fail-open allow, got %v", d.Outcome)
	}
	if !d.FailedOpen {
		t.Fatalf("expected FailedOpen flag")
	}
	if d.Remaining != -1 {
		t.Fatalf("expected remaining -1 on fail-open, got %d", d.Remaining)
	}
}

func TestWindowExpiryResetsBudget(t *testing.T) {
	limiter, mr, done := newTestLimiter(t, Config{
		Policies: map[IdentifierType]Policy{TypeIP: {Requests: 1, Window: time.Minute}},
		Ban:      defaultBan(),
	})
	defer done()
	ctx := context.Background()
	id := IP("203.0.113.9")

	if d := limiter.Check(ctx, id); !d.Allowed() {
		t.Fatalf("first request should be allowed, got %v", d.Outcome)
	}
	if d := limiter.Check(ctx, id); d.Outcome != OutcomeDenied {
		t.Fatalf("second request should be denied, got %v", d.Outcome)
	}

	mr.FastForward(time.Minute + time.Second)

	if d := limiter.Check(ctx, id); !d.Allowed() {
		t.Fatalf("fresh window should allow again, got %v", d.Outcome)
	}
}

func TestCheckAllPicksTightestAllowedDecision(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{
		Policies: map[IdentifierType]Policy{
			TypeIP:   {Requests: 10, Window: time.Minute},
			TypeUser: {Requests: 2, Window: time.Minute},
		},
		Ban: defaultBan(),
	})
	defer done()
	ctx := context.Background()

	d := limiter.CheckAll(ctx, IP("203.0.113.9"), User("u-1"))
	if !d.Allowed() {
		t.Fatalf("expected allowed, got %v", d.Outcome)
	}
	if d.Identifier.Type != TypeUser {
		t.Fatalf("expected the tighter user budget to win, got %v", d.Identifier.Type)
	}
	if d.Remaining != 1 {
		t.Fatalf("expected remaining 1 from user budget, got %d", d.Remaining)
	}
}

func TestCheckAllShortCircuitsOnDenial(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{
		Policies: map[IdentifierType]Policy{
			TypeIP:   {Requests: 1, Window: time.Minute},
			TypeUser: {Requests: 100, Window: time.Minute},
		},
		Ban: defaultBan(),
	})
	defer done()
	ctx := context.Background()

	limiter.Check(ctx, IP("203.0.113.9"))

	d := limiter.CheckAll(ctx, IP("203.0.113.9"), User("u-1"))
	if d.Outcome != OutcomeDenied {
		t.Fatalf("expected denial from IP budget, got %v", d.Outcome)
	}
	if d.Identifier.Type != TypeIP {
		t.Fatalf("expected the denying identifier, got %v", d.Identifier.Type)
	}

	// The user counter must not have been touched by the short-circuit.
	count, err := limiter.store.GetCounter(ctx, counterKey(User("u-1"), time.Now().Unix()/60))
	if err != nil {
		t.Fatalf("counter read: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected user counter untouched after short-circuit, got %d", count)
	}
}

func TestCheckAllWithoutIdentifiersAllows(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{Ban: defaultBan()})
	defer done()

	if d := limiter.CheckAll(context.Background()); !d.Allowed() {
		t.Fatalf("no identifiers must allow, got %v", d.Outcome)
	}
}
