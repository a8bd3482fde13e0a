// Package session holds the stateless session policy for one cookie namespace.
//
// A [Policy] decides how an identity cookie is framed (legacy or structured), which cookie
// attributes it carries, and whether a decoded payload is still within its login and visit
// deadlines. Policies are built once with [PolicyBuilder] and are immutable afterwards.
//
// # Deadlines
//
// A login deadline bounds the time since the identity was first sealed. A visit deadline
// bounds the time since the cookie was last re-sealed; policies with a visit deadline require
// a refresh on every successful request. A policy with neither deadline is legacy compatible
// and seals the bare identity.
//
// # Architecture boundaries
//
// This package owns payload lifecycle (mint, refresh, validate). It does NOT seal or open
// cookie values (package cookie) and does NOT touch requests, responses or user records
// (the Engine).
//
// # What this package must NOT do
//
//   - Import goSession (no upward imports).
//   - Read the wall clock; callers pass "now".
//   - Persist anything server side.
package session
