package session

import "time"

// Record is the full per-session state. The session id is an opaque
// random identifier; UserID is a lookup back-reference, not ownership.
type Record struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	RefreshToken   string    `json:"refresh_token"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

// Meta is the lightweight per-session metadata record written alongside
// the full record. Listing a user's sessions reads only these.
type Meta struct {
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

// Info is one entry in a user's session listing.
type Info struct {
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Current        bool      `json:"current"`
}

// ClientMeta carries the optional request attributes recorded at
// session creation.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}
