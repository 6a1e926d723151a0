//go:build integration
// +build integration

package admission

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/creditsys/admission/token"
)

// cmdCounter is a go-redis Hook that counts Redis round-trips (individual
// commands and pipeline calls).
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		// Each pipeline call is one network round-trip regardless of command count.
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64 { return h.commands.Load() }

// newCountedEngine builds an engine on a miniredis client with a cmdCounter
// hook installed. Reset the counter before each measured operation.
func newCountedEngine(t *testing.T) (*Engine, *cmdCounter, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	// Warm the connection: go-redis may emit extra commands on first use
	// (handshake, HELLO, CLIENT SETNAME, etc.). A PING up front keeps that
	// noise out of the budgets.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter.Reset()

	engine, err := New().WithConfig(testEngineConfig()).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	return engine, counter, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

// TestAdmitAnonymousRedisBudget verifies that an anonymous admit costs one
// ban lookup plus one counter script per active dimension. Anonymous
// traffic only has the IP dimension.
func TestAdmitAnonymousRedisBudget(t *testing.T) {
	engine, counter, cleanup := newCountedEngine(t)
	defer cleanup()

	ctx := context.Background()
	req := AdmitRequest{ClientIP: "192.0.2.77", UserAgent: "budget-agent"}

	// First call may pay EVALSHA+EVAL for the script cache miss.
	if _, err := engine.Admit(ctx, req); err != nil {
		t.Fatalf("warmup admit: %v", err)
	}
	counter.Reset()

	if _, err := engine.Admit(ctx, req); err != nil {
		t.Fatalf("admit: %v", err)
	}

	// GET (ban record) + EVALSHA (window counter) = 2.
	if cmds := counter.Commands(); cmds > 2 {
		t.Errorf("anonymous Admit used %d Redis commands; budget is 2", cmds)
	}
}

// TestAdmitAuthenticatedRedisBudget verifies the full pipeline: one EXISTS
// for the validity ledger, then ban lookup plus counter script for the IP
// and user dimensions.
func TestAdmitAuthenticatedRedisBudget(t *testing.T) {
	engine, counter, cleanup := newCountedEngine(t)
	defer cleanup()

	ctx := WithUserAgent(WithClientIP(context.Background(), "192.0.2.77"), "budget-agent")
	access, _, err := engine.IssueToken(ctx, token.TypeAccess, token.Subject{ID: "budget-user"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := AdmitRequest{
		ClientIP:    "192.0.2.77",
		UserAgent:   "budget-agent",
		BearerToken: access,
		RequireAuth: true,
		TokenType:   token.TypeAccess,
	}
	if _, err := engine.Admit(ctx, req); err != nil {
		t.Fatalf("warmup admit: %v", err)
	}
	counter.Reset()

	if _, err := engine.Admit(ctx, req); err != nil {
		t.Fatalf("admit: %v", err)
	}

	// EXISTS + 2 dimensions x (GET + EVALSHA) = 5.
	if cmds := counter.Commands(); cmds > 5 {
		t.Errorf("authenticated Admit used %d Redis commands; budget is 5", cmds)
	}
}

// TestVerifyTokenRedisBudget verifies that verification after the local
// signature checks is a single EXISTS.
func TestVerifyTokenRedisBudget(t *testing.T) {
	engine, counter, cleanup := newCountedEngine(t)
	defer cleanup()

	ctx := WithUserAgent(WithClientIP(context.Background(), "192.0.2.77"), "budget-agent")
	access, _, err := engine.IssueToken(ctx, token.TypeAccess, token.Subject{ID: "budget-user"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	counter.Reset()

	if _, err := engine.VerifyToken(ctx, access, token.TypeAccess); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if cmds := counter.Commands(); cmds > 1 {
		t.Errorf("VerifyToken used %d Redis commands; budget is 1 (EXISTS)", cmds)
	}
}

// TestIssueTokenRedisBudget verifies that issuance writes the validity
// entry and its index member in one script call.
func TestIssueTokenRedisBudget(t *testing.T) {
	engine, counter, cleanup := newCountedEngine(t)
	defer cleanup()

	ctx := WithUserAgent(WithClientIP(context.Background(), "192.0.2.77"), "budget-agent")
	if _, _, err := engine.IssueToken(ctx, token.TypeAccess, token.Subject{ID: "budget-user"}); err != nil {
		t.Fatalf("warmup issue: %v", err)
	}
	counter.Reset()

	if _, _, err := engine.IssueToken(ctx, token.TypeAccess, token.Subject{ID: "budget-user"}); err != nil {
		t.Fatalf("issue: %v", err)
	}

	if cmds := counter.Commands(); cmds > 1 {
		t.Errorf("IssueToken used %d Redis commands; budget is 1 (EVALSHA)", cmds)
	}
}
