// Package lockout tracks failed authentication attempts across several
// independent identifier dimensions (email, IP, or any composite) and
// reports a lockout once any single dimension exhausts its budget.
//
// Identifiers are modeled as (namespace, value) pairs rather than
// pre-concatenated strings so new dimensions — a device fingerprint,
// say — can be added without touching call sites. All identifiers for
// one principal are incremented in one pipelined batch and checked
// disjunctively in one batched read.
//
// Counters are monotonically non-decreasing within a TTL lifetime:
// they reset only by explicit Clear after a confirmed successful
// authentication, or by natural expiry of the lockout window.
package lockout
