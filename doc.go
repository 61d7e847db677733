// Package authguard is the authentication-defense layer for the
// request-handling services around it: fixed-window rate limiting,
// brute-force lockout tracking, session lifecycle management, advisory
// suspicion scoring, and CSRF token issuance, coordinated through one
// shared Redis client.
//
// The package is designed for concurrent server workloads: [Guard]
// methods are safe to call from multiple goroutines after construction
// through [New].
//
// # Architecture boundaries
//
// authguard is the composition surface. Each defense component lives in
// its own package (ratelimit, lockout, suspicion, session, csrf) over a
// shared store wrapper in internal/kv; the Guard owns the
// cross-cutting policy they must not know about: which failures
// degrade open versus closed, and what gets audited and counted.
//
// # Degradation policy
//
// A throttle that cannot reach its store fails open: rate-limit and
// lockout checks allow the request, emit an audit event, and count the
// degradation. Session state is the source of truth for identity, so
// session reads and writes fail closed: an unreachable store reads as
// not authenticated, never as a fault escaping to the caller.
package authguard
