package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/clank08/tcwatch-authguard/internal/kv"
)

func newTestLimiter(t *testing.T, rules []Rule) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	limiter, err := New(kv.NewClient(rdb), rules)
	if err != nil {
		t.Fatalf("limiter construction failed: %v", err)
	}

	return limiter, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func signInRule() Rule {
	return Rule{Name: "auth.signIn", Window: 15 * time.Minute, MaxRequests: 5, Message: "too many sign-in attempts"}
}

func TestCheckAndConsume_WindowBoundary(t *testing.T) {
	limiter, _, done := newTestLimiter(t, []Rule{signInRule()})
	defer done()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.WithClock(func() time.Time { return base })

	ctx := context.Background()
	windowMs := (15 * time.Minute).Milliseconds()
	windowStart := base.UnixMilli() / windowMs * windowMs

	for i := 1; i <= 5; i++ {
		result, err := limiter.CheckAndConsume(ctx, "auth.signIn", "1.2.3.4:u1")
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("call %d: expected allowed", i)
		}
		if result.Remaining != 5-i {
			t.Fatalf("call %d: expected remaining %d, got %d", i, 5-i, result.Remaining)
		}
	}

	result, err := limiter.CheckAndConsume(ctx, "auth.signIn", "1.2.3.4:u1")
	if err != nil {
		t.Fatalf("6th call failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("6th call: expected denied")
	}
	windowEnd := time.UnixMilli(windowStart + windowMs)
	if result.ResetAt.After(windowEnd) {
		t.Fatalf("resetAt %v is after window end %v", result.ResetAt, windowEnd)
	}
	if result.RetryAfter <= 0 || result.RetryAfter > 15*time.Minute {
		t.Fatalf("retryAfter out of range: %v", result.RetryAfter)
	}
	if result.Message != "too many sign-in attempts" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestCheckAndConsume_IdentitiesArePartitioned(t *testing.T) {
	limiter, _, done := newTestLimiter(t, []Rule{signInRule()})
	defer done()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := limiter.CheckAndConsume(ctx, "auth.signIn", "1.2.3.4:u1"); err != nil {
			t.Fatalf("consume failed: %v", err)
		}
	}

	result, err := limiter.CheckAndConsume(ctx, "auth.signIn", "5.6.7.8:u2")
	if err != nil {
		t.Fatalf("other identity failed: %v", err)
	}
	if !result.Allowed || result.Remaining != 4 {
		t.Fatalf("other identity: expected fresh budget, got %+v", result)
	}
}

func TestCheckAndConsume_FreshBudgetInNextWindow(t *testing.T) {
	limiter, mr, done := newTestLimiter(t, []Rule{signInRule()})
	defer done()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	limiter.WithClock(func() time.Time { return now })

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		if _, err := limiter.CheckAndConsume(ctx, "auth.signIn", "ip:u"); err != nil {
			t.Fatalf("consume failed: %v", err)
		}
	}

	// Cross the boundary: the key changes and the stale counter's TTL
	// runs out on the store side.
	now = base.Add(15 * time.Minute)
	mr.FastForward(15 * time.Minute)

	result, err := limiter.CheckAndConsume(ctx, "auth.signIn", "ip:u")
	if err != nil {
		t.Fatalf("next window failed: %v", err)
	}
	if !result.Allowed || result.Remaining != 4 {
		t.Fatalf("next window: expected fresh budget, got %+v", result)
	}
}

func TestCheckAndConsume_RetryAfterFromKeyTTL(t *testing.T) {
	limiter, mr, done := newTestLimiter(t, []Rule{signInRule()})
	defer done()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.WithClock(func() time.Time { return base })

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := limiter.CheckAndConsume(ctx, "auth.signIn", "ip:u"); err != nil {
			t.Fatalf("consume failed: %v", err)
		}
	}

	// Burn 5 minutes of the key's TTL; the denial must report the
	// shrunken wait, not the full window.
	mr.FastForward(5 * time.Minute)

	result, err := limiter.CheckAndConsume(ctx, "auth.signIn", "ip:u")
	if err != nil {
		t.Fatalf("denied call failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected denial")
	}
	if result.RetryAfter > 10*time.Minute {
		t.Fatalf("retryAfter should come from remaining TTL, got %v", result.RetryAfter)
	}
}

func TestCheckAndConsume_UnknownRule(t *testing.T) {
	limiter, _, done := newTestLimiter(t, []Rule{signInRule()})
	defer done()

	_, err := limiter.CheckAndConsume(context.Background(), "no.such.rule", "ip:u")
	if !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestCheckAndConsume_StoreDown(t *testing.T) {
	limiter, mr, done := newTestLimiter(t, []Rule{signInRule()})
	defer done()

	mr.Close()

	_, err := limiter.CheckAndConsume(context.Background(), "auth.signIn", "ip:u")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNew_RejectsInvalidRules(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := kv.NewClient(rdb)

	cases := []struct {
		name  string
		rules []Rule
	}{
		{"missing name", []Rule{{Window: time.Minute, MaxRequests: 1}}},
		{"zero window", []Rule{{Name: "r", MaxRequests: 1}}},
		{"zero budget", []Rule{{Name: "r", Window: time.Minute}}},
		{"duplicate", []Rule{
			{Name: "r", Window: time.Minute, MaxRequests: 1},
			{Name: "r", Window: time.Minute, MaxRequests: 2},
		}},
	}
	for _, tc := range cases {
		if _, err := New(store, tc.rules); err == nil {
			t.Fatalf("%s: expected construction error", tc.name)
		}
	}
}

func TestIdentity(t *testing.T) {
	if got := Identity("1.2.3.4", "u1"); got != "1.2.3.4:u1" {
		t.Fatalf("unexpected identity %q", got)
	}
	if got := Identity("1.2.3.4", ""); got != "1.2.3.4:anonymous" {
		t.Fatalf("unexpected anonymous identity %q", got)
	}
}
