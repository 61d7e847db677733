// Package session owns the per-session records, the per-user index
// sets, and the concurrent-session cap.
//
// # Key layout
//
//	sess:{id}   full record (JSON)
//	sessm:{id}  lightweight metadata used for listing
//	sessu:{uid} set of the user's live session ids
//
// Every live record's id appears in exactly one user index set. The
// index is capped; creating past the cap evicts the oldest sessions by
// creation time first. Eviction reads then deletes without a
// transaction, so two concurrent creates for one user can transiently
// overshoot the cap by the number of concurrent creators; the next
// create heals it.
//
// # Expiry
//
// The store's TTL is a backstop, not the source of truth. Reads compare
// the record's own expiresAt against the application clock and delete
// on the spot when it has passed (lazy expiry). A successful read
// slides the expiry forward; renewal never happens any other way.
package session
