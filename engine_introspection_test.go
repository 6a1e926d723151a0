package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creditsys/admission/token"
)

func TestIntrospectionTokenCountAndListAfterIssueRevoke(t *testing.T) {
	engine, _, done := newTestEngine(t, nil, nil)
	defer done()

	ctx := clientContext("198.51.100.7", "credit-cli/1.4")
	access, accessClaims, err := engine.IssueToken(ctx, token.TypeAccess, testSubject())
	if err != nil {
		t.Fatalf("issue access failed: %v", err)
	}
	_, refreshClaims, err := engine.IssueToken(ctx, token.TypeRefresh, testSubject())
	if err != nil {
		t.Fatalf("issue refresh failed: %v", err)
	}

	count, err := engine.ActiveTokenCount(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ActiveTokenCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active tokens, got %d", count)
	}

	list, err := engine.ListActiveTokens(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ListActiveTokens failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected list length 2, got %d", len(list))
	}
	// Oldest first.
	if list[0].ID != accessClaims.ID || list[1].ID != refreshClaims.ID {
		t.Fatalf("unexpected order: %s then %s", list[0].ID, list[1].ID)
	}
	for _, rec := range list {
		if rec.Subject != "u-1" {
			t.Fatalf("expected subject u-1, got %s", rec.Subject)
		}
	}
	if list[0].Type != token.TypeAccess || list[1].Type != token.TypeRefresh {
		t.Fatalf("unexpected types: %s, %s", list[0].Type, list[1].Type)
	}

	if _, err := engine.RevokeToken(ctx, access); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	countAfter, err := engine.ActiveTokenCount(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ActiveTokenCount after revoke failed: %v", err)
	}
	if countAfter != 1 {
		t.Fatalf("expected 1 active token after revoke, got %d", countAfter)
	}
}

func TestIntrospectionSkipsExpiredEntries(t *testing.T) {
	engine, mr, done := newTestEngine(t, func(cfg *Config) {
		cfg.Token.AccessTTL = time.Second
	}, nil)
	defer done()

	ctx := clientContext("198.51.100.7", "credit-cli/1.4")
	if _, _, err := engine.IssueToken(ctx, token.TypeAccess, testSubject()); err != nil {
		t.Fatalf("issue access failed: %v", err)
	}
	if _, _, err := engine.IssueToken(ctx, token.TypeRefresh, testSubject()); err != nil {
		t.Fatalf("issue refresh failed: %v", err)
	}

	mr.FastForward(2 * time.Second)

	// The access entry expired; the index member is skipped, not returned.
	list, err := engine.ListActiveTokens(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ListActiveTokens failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected only the refresh token, got %d records", len(list))
	}
	if list[0].Type != token.TypeRefresh {
		t.Fatalf("expected refresh record, got %s", list[0].Type)
	}
}

func TestIntrospectionEmptySubject(t *testing.T) {
	engine, _, done := newTestEngine(t, nil, nil)
	defer done()

	if _, err := engine.ActiveTokenCount(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty subject id")
	}
}

func TestHealthReportsStoreState(t *testing.T) {
	engine, mr, done := newTestEngine(t, nil, nil)
	defer done()

	status := engine.Health(context.Background())
	if !status.StoreAvailable {
		t.Fatal("expected healthy store")
	}
	if status.StoreLatency <= 0 {
		t.Fatalf("expected positive latency, got %s", status.StoreLatency)
	}

	mr.Close()

	status = engine.Health(context.Background())
	if status.StoreAvailable {
		t.Fatal("expected unavailable store after close")
	}
}

func TestHealthNilEngine(t *testing.T) {
	var engine *Engine
	status := engine.Health(context.Background())
	if status.StoreAvailable {
		t.Fatal("expected zero health from nil engine")
	}
	if _, err := engine.ActiveTokenCount(context.Background(), "u-1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
