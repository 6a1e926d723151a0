package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/creditsys/admission"
	"github.com/creditsys/admission/token"
)

const loadtestAgent = "admit-loadtest/1.0"

type subjectState struct {
	id    string
	ip    string
	token string
}

func main() {
	var (
		subjects    = flag.Int("subjects", 10000, "number of subjects to seed tokens for")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (admit + verify)")
		limit       = flag.Int("limit", 1000, "per-IP requests per window")
		window      = flag.Duration("window", time.Minute, "rate limit window")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		namespace   = flag.String("namespace", "adm", "store key namespace")
	)
	flag.Parse()

	if *subjects <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "subjects, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  *redis.Client
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := admission.DefaultConfig()
	cfg.Store.Namespace = *namespace
	cfg.Store.EncryptionSecret = []byte("loadtest-encryption-secret")
	cfg.Store.EncryptionSalt = []byte("loadtest-encryption-salt")
	cfg.Store.KDFIterations = 10000
	cfg.Token.SigningKey = []byte("loadtest-signing-key-32-bytes!!!")
	cfg.Token.FingerprintSalt = []byte("loadtest-fingerprint-salt")
	cfg.RateLimit.PerIP = admission.Quota{Enabled: true, Requests: *limit, Window: *window}
	cfg.RateLimit.PerUser = admission.Quota{Enabled: true, Requests: *limit, Window: *window}
	cfg.RateLimit.PerAPIKey = admission.Quota{Enabled: false}
	// Bans off so denied subjects keep producing comparable samples.
	cfg.Ban.Threshold = 0
	cfg.Metrics.Enabled = true

	engine, err := admission.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]subjectState, *subjects)
	fmt.Printf("seeding %d subject tokens...\n", *subjects)
	startSeed := time.Now()
	for i := 0; i < *subjects; i++ {
		st := subjectState{
			id: fmt.Sprintf("subject-%d", i),
			ip: syntheticIP(i),
		}
		issueCtx := admission.WithUserAgent(admission.WithClientIP(ctx, st.ip), loadtestAgent)
		signed, _, err := engine.IssueToken(issueCtx, token.TypeAccess, token.Subject{ID: st.id})
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		st.token = signed
		states[i] = st
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	admitStats := runAdmitPhase(ctx, engine, states, *ops, *concurrency)
	verifyStats := runVerifyPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("admit", admitStats)
	printStats("verify", verifyStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine counters: allowed=%d denied=%d verify_ok=%d verify_fail=%d\n",
		snap.Counters[admission.MetricCheckAllowed],
		snap.Counters[admission.MetricCheckDenied],
		snap.Counters[admission.MetricTokenVerifyOK],
		snap.Counters[admission.MetricTokenVerifyFail],
	)
}

func runAdmitPhase(ctx context.Context, engine *admission.Engine, states []subjectState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		allowed   int64
		denied    int64
		banned    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				st := &states[r.Intn(len(states))]

				req := admission.AdmitRequest{
					ClientIP:    st.ip,
					UserAgent:   loadtestAgent,
					BearerToken: st.token,
					RequireAuth: true,
					TokenType:   token.TypeAccess,
				}

				t0 := time.Now()
				_, err := engine.Admit(ctx, req)
				d := time.Since(t0)

				switch {
				case err == nil:
					atomic.AddInt64(&allowed, 1)
				case errors.Is(err, admission.ErrRateLimited):
					atomic.AddInt64(&denied, 1)
				case errors.Is(err, admission.ErrBanned):
					atomic.AddInt64(&banned, 1)
				default:
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)

	stats := computeStats(total, latencies, failures)
	stats.allowed = allowed
	stats.denied = denied
	stats.banned = banned
	return stats
}

func runVerifyPhase(ctx context.Context, engine *admission.Engine, states []subjectState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		allowed   int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				st := &states[r.Intn(len(states))]
				verifyCtx := admission.WithUserAgent(admission.WithClientIP(ctx, st.ip), loadtestAgent)

				t0 := time.Now()
				_, err := engine.VerifyToken(verifyCtx, st.token, token.TypeAccess)
				d := time.Since(t0)

				if err == nil {
					atomic.AddInt64(&allowed, 1)
				} else {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)

	stats := computeStats(total, latencies, failures)
	stats.allowed = allowed
	return stats
}

type phaseStats struct {
	total    time.Duration
	ops      int
	allowed  int64
	denied   int64
	banned   int64
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d allowed=%d denied=%d banned=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.allowed,
		s.denied,
		s.banned,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// syntheticIP spreads subjects across a 10.0.0.0/8 style space so the
// per-IP dimension sees distinct identifiers.
func syntheticIP(i int) string {
	return fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xFF, (i>>8)&0xFF, i&0xFF)
}
