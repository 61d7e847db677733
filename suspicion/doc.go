// Package suspicion derives advisory risk signals from the same counter
// primitives the enforcement components use: request burst rate per IP,
// user-agent shape, and a credential-spraying signature built from a
// TTL'd set of distinct emails attempted per IP.
//
// The output is telemetry, never an enforcement gate. A report must not
// block a request by itself, and a degraded store degrades the report
// to the signals that need no store rather than failing the request.
package suspicion
