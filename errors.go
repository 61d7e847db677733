package authguard

import (
	"errors"

	"github.com/clank08/tcwatch-authguard/csrf"
	"github.com/clank08/tcwatch-authguard/internal/kv"
	"github.com/clank08/tcwatch-authguard/ratelimit"
	"github.com/clank08/tcwatch-authguard/session"
)

var (
	// ErrStoreUnavailable indicates the shared store cannot be reached.
	// Rate-limit and lockout paths absorb it (fail open); session paths
	// surface it joined with ErrSessionNotFound (fail closed).
	ErrStoreUnavailable = kv.ErrUnavailable
	// ErrRuleNotFound indicates a caller referenced an undefined
	// rate-limit rule. Rules are validated at construction, so this is
	// a configuration bug, not a runtime condition to recover from.
	ErrRuleNotFound = ratelimit.ErrRuleNotFound
	// ErrRateLimited is the canonical error for surfacing a rate-limit
	// denial. CheckAndConsume reports denials in its result; callers
	// mapping that result into an error flow use this value so their
	// own callers can test it with errors.Is.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrAccountLocked is the canonical error for surfacing an active
	// lockout, the counterpart of ErrRateLimited for IsLocked results.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrCSRFInvalid is the expected, user-facing denial when a
	// presented CSRF token is absent, expired, or mismatched.
	ErrCSRFInvalid = csrf.ErrInvalid
	// ErrSessionNotFound means the presented session id resolves to
	// nothing; callers treat it as "not authenticated".
	ErrSessionNotFound = session.ErrNotFound
	// ErrSessionExpired means the record existed but its stored expiry
	// had passed; callers treat it exactly like ErrSessionNotFound.
	ErrSessionExpired = session.ErrExpired
)
