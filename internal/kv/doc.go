// Package kv wraps the shared Redis client with the small set of
// primitives every defense component is built from: atomic increments,
// TTL assignment, set membership, and best-effort pipelined batches.
//
// # Atomicity
//
// Each individual operation is atomic on the store side. A batch is NOT
// a transaction: ops are pipelined for latency only, and a failure part
// way through leaves earlier ops applied. Callers that need the
// increment-then-expire pattern get the post-increment value and a
// "first write" flag from [Client.Increment] and apply the TTL
// themselves; the window between the two calls is a documented,
// accepted race.
//
// # What this package must NOT do
//
//   - Implement rate-limit, lockout, or session policy (those live in
//     their own packages).
//   - Be imported outside this module.
package kv
