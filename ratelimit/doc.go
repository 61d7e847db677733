// Package ratelimit implements fixed-window request limiting over the
// shared TTL store.
//
// # Window semantics
//
// Counters are keyed by rule, identity, and aligned window start:
//
//	rate:{rule}:{identity}:{windowStart}
//
// The first increment in a window assigns the key a TTL equal to the
// window length, so abandoned windows clean themselves up. Windows are
// fixed, not sliding: a caller can burst up to 2×maxRequests across a
// window boundary. That is an accepted trade-off for O(1) storage per
// identity over sliding-window accuracy.
//
// Retry-after on denial is derived from the key's remaining TTL rather
// than from the window length, so clock skew and late TTL assignment
// cannot report a longer wait than the store will actually enforce.
package ratelimit
