package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/creditsys/admission/kv"
)

const banReasonViolations = "rate limit violations"

// Limiter enforces the per-identifier request budgets using store-side
// counters only. Identifier types without a policy pass through uncounted.
type Limiter struct {
	store    *kv.Client
	policies map[IdentifierType]Policy
	ban      BanPolicy
}

// Config carries the limiter policies. Policies maps each enforced
// identifier type to its budget; absent types are not limited.
type Config struct {
	Policies map[IdentifierType]Policy
	Ban      BanPolicy
}

// New creates a [Limiter] on top of the given store client.
func New(store *kv.Client, cfg Config) *Limiter {
	policies := make(map[IdentifierType]Policy, len(cfg.Policies))
	for t, p := range cfg.Policies {
		policies[t] = p
	}
	return &Limiter{store: store, policies: policies, ban: cfg.Ban}
}

func counterKey(id Identifier, bucket int64) string {
	return "rl:" + string(id.Type) + ":" + id.Value + ":" + strconv.FormatInt(bucket, 10)
}

func violationKey(id Identifier) string {
	return "rv:" + string(id.Type) + ":" + id.Value
}

func banKey(id Identifier) string {
	return "rb:" + string(id.Type) + ":" + id.Value
}

func offenseKey(id Identifier) string {
	return "ro:" + string(id.Type) + ":" + id.Value
}

// Check runs the full admission sequence for one identifier: ban gate,
// atomic window increment, violation tracking, ban escalation. The request
// that overflows the budget is itself denied; when its violation pushes the
// count to the ban threshold it still sees Denied, and every request after
// that sees Banned until the ban lifts.
//
//	Performance: 1 GET + 1 EVALSHA when allowed; up to 2 more on denial.
func (l *Limiter) Check(ctx context.Context, id Identifier) Decision {
	policy, enforced := l.policies[id.Type]
	if !enforced || id.Value == "" {
		return Decision{Outcome: OutcomeAllowed, Identifier: id, Remaining: -1}
	}

	now := time.Now()

	banned, until, err := l.activeBan(ctx, id, now)
	if err != nil {
		return failOpen(id, policy)
	}
	if banned {
		return Decision{
			Outcome:     OutcomeBanned,
			Identifier:  id,
			Limit:       policy.Requests,
			Remaining:   0,
			RetryAfter:  time.Until(until),
			ResetAt:     until,
			BannedUntil: until,
		}
	}

	windowSeconds := int64(policy.Window / time.Second)
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	bucket := now.Unix() / windowSeconds

	count, ttl, err := l.store.IncrWindow(ctx, counterKey(id, bucket), policy.Window)
	if err != nil {
		return failOpen(id, policy)
	}

	if count <= int64(policy.Requests) {
		return Decision{
			Outcome:    OutcomeAllowed,
			Identifier: id,
			Limit:      policy.Requests,
			Remaining:  policy.Requests - int(count),
			ResetAt:    now.Add(ttl),
		}
	}

	denied := Decision{
		Outcome:    OutcomeDenied,
		Identifier: id,
		Limit:      policy.Requests,
		Remaining:  0,
		RetryAfter: ttl,
		ResetAt:    now.Add(ttl),
	}

	// The denial stands regardless of what violation tracking does; a store
	// hiccup here must not flip an over-limit request back to allowed.
	violations, _, err := l.store.IncrWindow(ctx, violationKey(id), l.ban.Window)
	if err != nil {
		return denied
	}

	if l.ban.Threshold > 0 && violations >= int64(l.ban.Threshold) {
		if until, ok := l.issueBan(ctx, id, now); ok {
			denied.BanIssued = true
			denied.BannedUntil = until
		}
	}

	return denied
}

// CheckAll evaluates identifiers in order and short-circuits on the first
// Banned or Denied. When every identifier allows, the decision with the
// least remaining budget is returned so callers surface the tightest
// headers.
func (l *Limiter) CheckAll(ctx context.Context, ids ...Identifier) Decision {
	if len(ids) == 0 {
		return Decision{Outcome: OutcomeAllowed, Remaining: -1}
	}

	var tightest Decision
	first := true
	for _, id := range ids {
		d := l.Check(ctx, id)
		if !d.Allowed() {
			return d
		}
		if first || tighterThan(d, tightest) {
			tightest = d
			first = false
		}
	}
	return tightest
}

func tighterThan(a, b Decision) bool {
	if a.FailedOpen && !b.FailedOpen {
		return true
	}
	if a.Remaining < 0 {
		return false
	}
	if b.Remaining < 0 {
		return true
	}
	return a.Remaining < b.Remaining
}

func (l *Limiter) activeBan(ctx context.Context, id Identifier, now time.Time) (bool, time.Time, error) {
	data, err := l.store.Get(ctx, banKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}

	var rec banRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// Unreadable ban records are dropped, not trusted.
		_, _ = l.store.Delete(ctx, banKey(id))
		return false, time.Time{}, nil
	}

	if !now.Before(rec.BannedUntil) {
		return false, time.Time{}, nil
	}
	return true, rec.BannedUntil, nil
}

func (l *Limiter) issueBan(ctx context.Context, id Identifier, now time.Time) (time.Time, bool) {
	offense64, _, err := l.store.IncrWindow(ctx, offenseKey(id), l.ban.OffenseMemory)
	offense := int(offense64)
	if err != nil || offense < 1 {
		offense = 1
	}

	duration := l.banDuration(offense)
	rec := banRecord{
		BannedUntil: now.Add(duration),
		Reason:      banReasonViolations,
		Offense:     offense,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return time.Time{}, false
	}
	if err := l.store.Set(ctx, banKey(id), payload, duration); err != nil {
		return time.Time{}, false
	}

	// The violations have been converted into the ban; a fresh cycle starts
	// from zero once it lifts.
	_, _ = l.store.Delete(ctx, violationKey(id))

	return rec.BannedUntil, true
}

func (l *Limiter) banDuration(offense int) time.Duration {
	d := l.ban.BaseDuration
	for i := 1; i < offense; i++ {
		next := float64(d) * l.ban.EscalationFactor
		if l.ban.MaxDuration > 0 && next >= float64(l.ban.MaxDuration) {
			return l.ban.MaxDuration
		}
		if next <= float64(d) || next >= math.MaxInt64/2 {
			break
		}
		d = time.Duration(next)
	}
	if l.ban.MaxDuration > 0 && d > l.ban.MaxDuration {
		return l.ban.MaxDuration
	}
	return d
}

func failOpen(id Identifier, policy Policy) Decision {
	return Decision{
		Outcome:    OutcomeAllowed,
		Identifier: id,
		Limit:      policy.Requests,
		Remaining:  -1,
		FailedOpen: true,
	}
}

// IsBanned reports whether an active ban exists and when it lifts.
// Administrative path: errors surface instead of failing open.
func (l *Limiter) IsBanned(ctx context.Context, id Identifier) (bool, time.Time, error) {
	data, err := l.store.Get(ctx, banKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}

	var rec banRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return false, time.Time{}, err
	}
	if !time.Now().Before(rec.BannedUntil) {
		return false, time.Time{}, nil
	}
	return true, rec.BannedUntil, nil
}

// Unban lifts an active ban. The offense memory is kept on purpose: an
// identifier that promptly reoffends escalates from where it left off.
func (l *Limiter) Unban(ctx context.Context, id Identifier) error {
	_, err := l.store.Delete(ctx, banKey(id))
	return err
}

// Reset wipes every trace of an identifier: the current window counter,
// violations, ban, and offense memory.
func (l *Limiter) Reset(ctx context.Context, id Identifier) error {
	keys := []string{violationKey(id), banKey(id), offenseKey(id)}

	if policy, ok := l.policies[id.Type]; ok {
		windowSeconds := int64(policy.Window / time.Second)
		if windowSeconds < 1 {
			windowSeconds = 1
		}
		keys = append(keys, counterKey(id, time.Now().Unix()/windowSeconds))
	}

	_, err := l.store.Delete(ctx, keys...)
	return err
}

// ViolationCount returns the live violation counter for an identifier.
func (l *Limiter) ViolationCount(ctx context.Context, id Identifier) (int64, error) {
	return l.store.GetCounter(ctx, violationKey(id))
}

// OffenseCount returns how many bans the identifier has accumulated within
// the offense memory.
func (l *Limiter) OffenseCount(ctx context.Context, id Identifier) (int64, error) {
	return l.store.GetCounter(ctx, offenseKey(id))
}
