package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clank08/tcwatch-authguard/internal/kv"
)

var (
	// ErrRuleNotFound is returned when a caller references a rule that
	// was never configured. This is a configuration bug: rules are
	// static and validated at construction, so hitting this at runtime
	// means a call site was added without its rule.
	ErrRuleNotFound = errors.New("rate limit rule not found")
	// ErrUnavailable indicates the counter store is unreachable.
	ErrUnavailable = kv.ErrUnavailable
)

// Rule is a named fixed-window budget. Rules are loaded at startup and
// immutable for the process lifetime.
type Rule struct {
	Name        string
	Window      time.Duration
	MaxRequests int
	Message     string
}

// Result is the outcome of one CheckAndConsume call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Message    string
}

// Limiter enforces named fixed-window rules against the shared store.
type Limiter struct {
	store *kv.Client
	rules map[string]Rule
	now   func() time.Time
}

// New creates a Limiter with the given rule set. Every rule must carry
// a positive window and budget.
func New(store *kv.Client, rules []Rule) (*Limiter, error) {
	byName := make(map[string]Rule, len(rules))
	for _, rule := range rules {
		if rule.Name == "" {
			return nil, errors.New("rate limit rule missing name")
		}
		if rule.Window <= 0 {
			return nil, fmt.Errorf("rate limit rule %q: window must be positive", rule.Name)
		}
		if rule.MaxRequests <= 0 {
			return nil, fmt.Errorf("rate limit rule %q: max requests must be positive", rule.Name)
		}
		if _, dup := byName[rule.Name]; dup {
			return nil, fmt.Errorf("rate limit rule %q: duplicate name", rule.Name)
		}
		byName[rule.Name] = rule
	}

	return &Limiter{
		store: store,
		rules: byName,
		now:   time.Now,
	}, nil
}

// WithClock overrides the limiter's time source. Intended for tests
// exercising window-boundary behavior.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Identity builds the default limiter identity from caller IP and user
// id. Unauthenticated callers share the "anonymous" suffix so the IP
// dimension still partitions them.
func Identity(ip, userID string) string {
	if userID == "" {
		userID = "anonymous"
	}
	return ip + ":" + userID
}

// Rule returns the named rule, if configured.
func (l *Limiter) Rule(name string) (Rule, bool) {
	rule, ok := l.rules[name]
	return rule, ok
}

// CheckAndConsume consumes one request from the identity's budget under
// the named rule and reports whether the request is allowed. The
// consumed slot is not refunded on denial; denied requests keep
// counting so the window TTL keeps the key alive.
func (l *Limiter) CheckAndConsume(ctx context.Context, ruleName, identity string) (Result, error) {
	rule, ok := l.rules[ruleName]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrRuleNotFound, ruleName)
	}

	now := l.now()
	windowMs := rule.Window.Milliseconds()
	windowStart := now.UnixMilli() / windowMs * windowMs
	key := fmt.Sprintf("rate:%s:%s:%d", rule.Name, identity, windowStart)

	count, first, err := l.store.Increment(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if first {
		// Not atomic with the increment: a crash between the two calls
		// leaves a counter without a TTL until the window key is next
		// created. Accepted, bounded risk.
		if err := l.store.Expire(ctx, key, rule.Window); err != nil {
			return Result{}, err
		}
	}

	resetAt := time.UnixMilli(windowStart + windowMs)
	if count > int64(rule.MaxRequests) {
		retryAfter, err := l.retryAfter(ctx, key, resetAt, now)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Allowed:    false,
			Limit:      rule.MaxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
			Message:    rule.Message,
		}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     rule.MaxRequests,
		Remaining: rule.MaxRequests - int(count),
		ResetAt:   resetAt,
	}, nil
}

// retryAfter prefers the key's observed TTL over window arithmetic so
// the reported wait matches what the store will enforce even under
// clock skew or a late TTL assignment.
func (l *Limiter) retryAfter(ctx context.Context, key string, resetAt, now time.Time) (time.Duration, error) {
	ttl, err := l.store.TTL(ctx, key)
	if err != nil {
		return 0, err
	}
	if ttl > 0 {
		return ttl, nil
	}

	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return retryAfter, nil
}
