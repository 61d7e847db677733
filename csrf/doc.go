// Package csrf issues and verifies short-lived tokens bound one-to-one
// to session identifiers.
//
// Tokens live in process memory, not in the shared store: a token is
// only ever verified by the instance that issued it within the same
// browsing flow. The issuer owns its own lifecycle — construct it at
// service start, close it on shutdown — and accepts an injected clock
// so expiry is testable without sleeping.
//
// Verification compares candidate and stored token byte-for-byte in
// constant time. Expired entries are removed opportunistically on
// lookup and by an optional background sweeper.
package csrf
