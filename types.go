package authguard

import (
	"github.com/clank08/tcwatch-authguard/lockout"
	"github.com/clank08/tcwatch-authguard/ratelimit"
	"github.com/clank08/tcwatch-authguard/session"
	"github.com/clank08/tcwatch-authguard/suspicion"
)

// Value types returned by Guard operations, aliased so callers can name
// them without importing the component packages.

// RateLimitRule is a named fixed-window budget.
type RateLimitRule = ratelimit.Rule

// RateLimitResult is the outcome of one CheckAndConsume call. On
// denial, RetryAfter is taken from the counter key's remaining TTL and
// is what the caller must surface verbatim as Retry-After.
type RateLimitResult = ratelimit.Result

// LockoutIdentifier is one lockout dimension for a principal.
type LockoutIdentifier = lockout.Identifier

// LockStatus is the outcome of a composite lockout check.
type LockStatus = lockout.Status

// SuspicionSample carries the per-request inputs the scorer inspects.
type SuspicionSample = suspicion.Sample

// SuspicionReport is an advisory risk assessment. It never gates a
// request.
type SuspicionReport = suspicion.Report

// SessionRecord is the full per-session state.
type SessionRecord = session.Record

// SessionInfo is one entry in a user's session listing.
type SessionInfo = session.Info

// SessionClientMeta carries optional request attributes recorded at
// session creation.
type SessionClientMeta = session.ClientMeta
