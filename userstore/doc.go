// Package userstore groups the goSession.IdentityStore backends used by albumd.
//
// # Backends
//
//   - memory: a mutex-guarded map for tests and single-process demos.
//   - redisstore: one Redis hash per user.
//   - pgstore: a PostgreSQL users table behind a pgx pool.
//
// Every backend wraps goSession.ErrUserNotFound for unknown usernames and
// goSession.ErrStoreUnavailable for backend failures, so the session middleware can tell a
// logged-out client from an outage.
//
// # What this package must NOT do
//
//   - Decode or mint session cookies.
//   - Verify passwords. Hashes are stored and returned opaque.
package userstore
