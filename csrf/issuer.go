package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// ErrInvalid is returned when a presented token is absent, expired, or
// does not match the token bound to the session.
var ErrInvalid = errors.New("invalid csrf token")

const tokenRawSize = 32

type entry struct {
	token     string
	expiresAt time.Time
}

// Issuer holds one active token per session id. A new issuance for a
// session overwrites the previous token.
type Issuer struct {
	mu      sync.RWMutex
	entries map[string]entry

	tokenTTL time.Duration
	now      func() time.Time

	sweepEvery time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the issuer's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithSweepInterval enables a background goroutine that removes expired
// entries every interval. Without it, expired entries are only removed
// opportunistically on lookup.
func WithSweepInterval(every time.Duration) Option {
	return func(i *Issuer) { i.sweepEvery = every }
}

// NewIssuer creates an Issuer whose tokens live for tokenTTL.
func NewIssuer(tokenTTL time.Duration, opts ...Option) *Issuer {
	issuer := &Issuer{
		entries:  make(map[string]entry),
		tokenTTL: tokenTTL,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(issuer)
	}

	if issuer.sweepEvery > 0 {
		go issuer.sweepLoop()
	}
	return issuer
}

// Issue generates a fresh token for the session, replacing any token
// previously bound to it.
func (i *Issuer) Issue(sessionID string) (string, error) {
	var raw [tokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw[:])

	i.mu.Lock()
	i.entries[sessionID] = entry{
		token:     token,
		expiresAt: i.now().Add(i.tokenTTL),
	}
	i.mu.Unlock()

	return token, nil
}

// Verify reports whether the presented token is the live token bound to
// the session. The comparison is constant-time over the token bytes so
// a mismatch reveals nothing about how much of the prefix matched.
// Expired entries found here are deleted opportunistically, on a
// snapshot read so a concurrent Verify of the same entry is unaffected
// mid-flight.
func (i *Issuer) Verify(sessionID, presented string) bool {
	i.mu.RLock()
	e, ok := i.entries[sessionID]
	i.mu.RUnlock()

	if !ok {
		return false
	}

	if i.now().After(e.expiresAt) {
		i.mu.Lock()
		// Only delete the entry we saw; a concurrent re-issue must win.
		if cur, still := i.entries[sessionID]; still && cur.token == e.token {
			delete(i.entries, sessionID)
		}
		i.mu.Unlock()
		return false
	}

	return subtle.ConstantTimeCompare([]byte(e.token), []byte(presented)) == 1
}

// Revoke drops the token bound to the session, if any. Called on
// logout so a stale token cannot outlive its session.
func (i *Issuer) Revoke(sessionID string) {
	i.mu.Lock()
	delete(i.entries, sessionID)
	i.mu.Unlock()
}

// ActiveTokens returns the number of live (unexpired) entries.
func (i *Issuer) ActiveTokens() int {
	now := i.now()

	i.mu.RLock()
	defer i.mu.RUnlock()

	count := 0
	for _, e := range i.entries {
		if !now.After(e.expiresAt) {
			count++
		}
	}
	return count
}

// Sweep removes every expired entry and returns how many were removed.
func (i *Issuer) Sweep() int {
	now := i.now()

	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for sid, e := range i.entries {
		if now.After(e.expiresAt) {
			delete(i.entries, sid)
			removed++
		}
	}
	return removed
}

// Close stops the background sweeper, if one was started.
func (i *Issuer) Close() {
	i.closeOnce.Do(func() { close(i.done) })
}

func (i *Issuer) sweepLoop() {
	ticker := time.NewTicker(i.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			i.Sweep()
		case <-i.done:
			return
		}
	}
}
