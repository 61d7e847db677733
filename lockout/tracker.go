package lockout

import (
	"context"
	"strconv"
	"time"

	"github.com/clank08/tcwatch-authguard/internal/kv"
)

// ErrUnavailable indicates the lockout backend is unreachable.
var ErrUnavailable = kv.ErrUnavailable

// Identifier is one lockout dimension for a principal, e.g.
// {"email", "a@test.com"} or {"ip", "1.2.3.4"}.
type Identifier struct {
	Namespace string
	Value     string
}

// Status is the outcome of a composite lockout check.
type Status struct {
	Locked            bool
	AttemptsRemaining int
	LockUntil         time.Time
}

// Config holds lockout tuning parameters.
type Config struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// Tracker counts authentication failures per identifier and reports
// lockout when any identifier reaches the configured threshold.
type Tracker struct {
	store  *kv.Client
	config Config
	now    func() time.Time
}

// New creates a Tracker backed by the shared store client.
func New(store *kv.Client, cfg Config) *Tracker {
	return &Tracker{
		store:  store,
		config: cfg,
		now:    time.Now,
	}
}

// WithClock overrides the tracker's time source for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) key(id Identifier) string {
	return "lock:" + id.Namespace + ":" + id.Value
}

// RecordFailure increments every identifier key in one batch. Keys
// created by this call get the lockout-duration TTL; existing keys keep
// their running window so repeated failures cannot push a lockout out
// indefinitely.
func (t *Tracker) RecordFailure(ctx context.Context, ids []Identifier) error {
	if len(ids) == 0 {
		return nil
	}

	ops := make([]kv.Op, len(ids))
	for i, id := range ids {
		ops[i] = kv.Op{Kind: kv.OpIncr, Key: t.key(id)}
	}

	results, err := t.store.Batch(ctx, ops)
	if err != nil {
		return err
	}

	var expires []kv.Op
	for i, res := range results {
		if res.Count == 1 {
			expires = append(expires, kv.Op{
				Kind: kv.OpExpire,
				Key:  t.key(ids[i]),
				TTL:  t.config.LockoutDuration,
			})
		}
	}
	if len(expires) == 0 {
		return nil
	}

	_, err = t.store.Batch(ctx, expires)
	return err
}

// IsLocked checks the identifiers disjunctively: if any single
// dimension has exhausted the failure budget the principal is locked.
// LockUntil is the furthest expiry observed across the checked keys;
// AttemptsRemaining reflects the dimension closest to locking.
func (t *Tracker) IsLocked(ctx context.Context, ids []Identifier) (Status, error) {
	if len(ids) == 0 {
		return Status{AttemptsRemaining: t.config.MaxFailedAttempts}, nil
	}

	ops := make([]kv.Op, 0, len(ids)*2)
	for _, id := range ids {
		ops = append(ops,
			kv.Op{Kind: kv.OpGet, Key: t.key(id)},
			kv.Op{Kind: kv.OpTTL, Key: t.key(id)},
		)
	}

	results, err := t.store.Batch(ctx, ops)
	if err != nil {
		return Status{}, err
	}

	var (
		maxCount int64
		maxTTL   time.Duration
	)
	for i := 0; i < len(ids); i++ {
		get := results[i*2]
		ttl := results[i*2+1]

		if get.Found {
			count, parseErr := strconv.ParseInt(get.Value, 10, 64)
			if parseErr == nil && count > maxCount {
				maxCount = count
			}
		}
		if ttl.TTL > maxTTL {
			maxTTL = ttl.TTL
		}
	}

	remaining := t.config.MaxFailedAttempts - int(maxCount)
	if remaining < 0 {
		remaining = 0
	}

	status := Status{
		Locked:            maxCount >= int64(t.config.MaxFailedAttempts),
		AttemptsRemaining: remaining,
	}
	if status.Locked && maxTTL > 0 {
		status.LockUntil = t.now().Add(maxTTL)
	}
	return status, nil
}

// Clear deletes every identifier key for a principal, restoring the
// full failure budget. Called exactly once, immediately after the
// external identity provider confirms a successful authentication.
func (t *Tracker) Clear(ctx context.Context, ids []Identifier) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = t.key(id)
	}
	return t.store.Del(ctx, keys...)
}

// FailureCount returns the current failure count for a single
// identifier. Missing keys read as zero.
func (t *Tracker) FailureCount(ctx context.Context, id Identifier) (int, error) {
	val, found, err := t.store.Get(ctx, t.key(id))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	count, parseErr := strconv.Atoi(val)
	if parseErr != nil {
		return 0, nil
	}
	return count, nil
}
