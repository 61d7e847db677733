package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clank08/tcwatch-authguard/internal/kv"
)

var (
	// ErrNotFound is returned when the session does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when the record exists but its stored
	// expiry has passed; the record is deleted as a side effect.
	ErrExpired = errors.New("session expired")
	// ErrUnavailable indicates the session backend is unreachable.
	// Session state is the source of truth for identity, so callers
	// must fail closed on this, never open.
	ErrUnavailable = kv.ErrUnavailable
)

// Config holds session registry tuning parameters.
type Config struct {
	SessionDuration    time.Duration
	MaxSessionsPerUser int
}

// Registry is the store-backed session registry.
type Registry struct {
	store  *kv.Client
	config Config
	now    func() time.Time
}

// NewRegistry creates a Registry backed by the shared store client.
func NewRegistry(store *kv.Client, cfg Config) *Registry {
	return &Registry{
		store:  store,
		config: cfg,
		now:    time.Now,
	}
}

// WithClock overrides the registry's time source for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

func sessionKey(sessionID string) string { return "sess:" + sessionID }
func metaKey(sessionID string) string    { return "sessm:" + sessionID }
func userKey(userID string) string       { return "sessu:" + userID }

// Create registers a new session for the user and returns its opaque
// id plus the number of sessions evicted to make room. The user's
// index is brought under the cap first (oldest sessions by creation
// time go), then the record, its metadata, and the index membership
// are written.
func (r *Registry) Create(ctx context.Context, userID, email, role, refreshToken string, meta ClientMeta) (string, int, error) {
	evicted, err := r.evictExcess(ctx, userID)
	if err != nil {
		return "", 0, err
	}

	now := r.now()
	record := Record{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		Email:          email,
		Role:           role,
		RefreshToken:   refreshToken,
		CreatedAt:      now,
		ExpiresAt:      now.Add(r.config.SessionDuration),
		LastAccessedAt: now,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	}

	if err := r.writeRecord(ctx, &record, r.config.SessionDuration); err != nil {
		return "", 0, err
	}

	if _, err := r.store.SAdd(ctx, userKey(userID), record.SessionID); err != nil {
		return "", 0, err
	}

	// The index set must not outlive its longest-lived member.
	if err := r.store.Expire(ctx, userKey(userID), r.config.SessionDuration); err != nil {
		return "", 0, err
	}

	return record.SessionID, evicted, nil
}

// Get returns the session record, renewing it as a side effect: a
// successful read slides the expiry to now + session duration and
// updates lastAccessedAt. An expired record is deleted on the spot and
// reads as not found on every subsequent call.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Record, error) {
	record, err := r.read(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	if now.After(record.ExpiresAt) {
		if err := r.remove(ctx, record.UserID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	record.LastAccessedAt = now
	record.ExpiresAt = now.Add(r.config.SessionDuration)
	// Last-writer-wins on lastAccessedAt; concurrent reads are safe.
	if err := r.writeRecord(ctx, record, r.config.SessionDuration); err != nil {
		return nil, err
	}

	return record, nil
}

// Delete removes the session, its metadata, and its index membership.
// Deleting a missing session is a no-op.
func (r *Registry) Delete(ctx context.Context, sessionID string) error {
	record, err := r.read(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The record may be gone while the metadata lingers.
			return r.store.Del(ctx, metaKey(sessionID))
		}
		return err
	}
	return r.remove(ctx, record.UserID, sessionID)
}

// DeleteAllForUser removes every session in the user's index plus the
// index itself, returning the number of records removed.
func (r *Registry) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := r.store.SMembers(ctx, userKey(userID))
	if err != nil {
		return 0, err
	}

	removed := 0
	ops := make([]kv.Op, 0, len(ids)*2+1)
	for _, id := range ids {
		if _, found, err := r.store.Get(ctx, sessionKey(id)); err != nil {
			return 0, err
		} else if found {
			removed++
		}
		ops = append(ops,
			kv.Op{Kind: kv.OpDel, Key: sessionKey(id)},
			kv.Op{Kind: kv.OpDel, Key: metaKey(id)},
		)
	}
	ops = append(ops, kv.Op{Kind: kv.OpDel, Key: userKey(userID)})

	if _, err := r.store.Batch(ctx, ops); err != nil {
		return 0, err
	}
	return removed, nil
}

// ListForUser returns metadata for the user's sessions sorted
// most-recently-active first, flagging the entry matching
// currentSessionID. Sessions whose metadata has expired independently
// are skipped.
func (r *Registry) ListForUser(ctx context.Context, userID, currentSessionID string) ([]Info, error) {
	ids, err := r.store.SMembers(ctx, userKey(userID))
	if err != nil {
		return nil, err
	}

	metas, err := r.readMetas(ctx, ids)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(metas))
	for _, m := range metas {
		infos = append(infos, Info{
			SessionID:      m.SessionID,
			CreatedAt:      m.CreatedAt,
			LastAccessedAt: m.LastAccessedAt,
			IPAddress:      m.IPAddress,
			UserAgent:      m.UserAgent,
			Current:        m.SessionID == currentSessionID,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastAccessedAt.After(infos[j].LastAccessedAt)
	})
	return infos, nil
}

// ActiveSessionCount returns the size of the user's index set.
func (r *Registry) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	count, err := r.store.SCard(ctx, userKey(userID))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// evictExcess brings the user's index below the cap so one more create
// fits. Oldest sessions by creation time go first; missing metadata is
// tolerated rather than failing the create.
func (r *Registry) evictExcess(ctx context.Context, userID string) (int, error) {
	ids, err := r.store.SMembers(ctx, userKey(userID))
	if err != nil {
		return 0, err
	}
	if len(ids) < r.config.MaxSessionsPerUser {
		return 0, nil
	}

	metas, err := r.readMetas(ctx, ids)
	if err != nil {
		return 0, err
	}

	// Index members whose metadata expired independently are already
	// stale: clean them up without counting them as evictions.
	live := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		live[m.SessionID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := live[id]; !ok {
			if err := r.remove(ctx, userID, id); err != nil {
				return 0, err
			}
		}
	}

	excess := len(metas) - (r.config.MaxSessionsPerUser - 1)
	if excess <= 0 {
		return 0, nil
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.Before(metas[j].CreatedAt)
	})
	evicted := 0
	for _, m := range metas[:excess] {
		if err := r.remove(ctx, userID, m.SessionID); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

func (r *Registry) readMetas(ctx context.Context, ids []string) ([]Meta, error) {
	if len(ids) == 0 {
		return []Meta{}, nil
	}

	ops := make([]kv.Op, len(ids))
	for i, id := range ids {
		ops[i] = kv.Op{Kind: kv.OpGet, Key: metaKey(id)}
	}
	results, err := r.store.Batch(ctx, ops)
	if err != nil {
		return nil, err
	}

	metas := make([]Meta, 0, len(ids))
	for i, res := range results {
		if !res.Found {
			continue
		}
		var m Meta
		if err := json.Unmarshal([]byte(res.Value), &m); err != nil {
			continue
		}
		if m.SessionID == "" {
			m.SessionID = ids[i]
		}
		metas = append(metas, m)
	}
	return metas, nil
}

func (r *Registry) read(ctx context.Context, sessionID string) (*Record, error) {
	data, found, err := r.store.GetBytes(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	record.SessionID = sessionID
	return &record, nil
}

// writeRecord persists the full record and its metadata in one
// pipeline, both under the same TTL.
func (r *Registry) writeRecord(ctx context.Context, record *Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", record.SessionID, err)
	}
	metaData, err := json.Marshal(Meta{
		SessionID:      record.SessionID,
		CreatedAt:      record.CreatedAt,
		LastAccessedAt: record.LastAccessedAt,
		IPAddress:      record.IPAddress,
		UserAgent:      record.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("encode session meta %s: %w", record.SessionID, err)
	}

	if err := r.store.Set(ctx, sessionKey(record.SessionID), data, ttl); err != nil {
		return err
	}
	return r.store.Set(ctx, metaKey(record.SessionID), metaData, ttl)
}

func (r *Registry) remove(ctx context.Context, userID, sessionID string) error {
	if err := r.store.Del(ctx, sessionKey(sessionID), metaKey(sessionID)); err != nil {
		return err
	}
	return r.store.SRem(ctx, userKey(userID), sessionID)
}
