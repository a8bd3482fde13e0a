// Package middleware exposes HTTP adapters that put a goSession namespace in front of a
// handler or a chi route group.
//
// # Adapters
//
//   - [Require] wraps a handler with the named namespace.
//   - [Mount] registers a chi route group whose handlers all run behind the namespace.
//
// Handlers read the hydrated identity with goSession.IdentityFrom.
//
// # Architecture boundaries
//
// This package translates routing concerns into Namespace.Handler calls. Cookie decoding,
// deadline checks, store lookups and refreshes all happen inside the engine.
//
// # What this package must NOT do
//
//   - Read or write session cookies directly.
//   - Query the identity store.
//   - Make authorization decisions beyond selecting the namespace.
package middleware
