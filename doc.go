// Package goSession seals a user's identity into HTTP cookies and hydrates it back on every
// request, for one or more independently named namespaces sharing one master secret.
//
// An [Engine] is built once through [Builder.Build]. It owns the cookie keyring, the session
// policy of every namespace, the [IdentityStore], metrics and audit dispatch. Each
// [Namespace] exposes an http.Handler middleware that rejects requests without a valid
// identity cookie, loads the full [User] record exactly once, and re-seals the identity into
// the response when the handler logs the user out or the policy requires a refresh.
//
// Handlers reach the identity with [IdentityFrom]. Login handlers call [Login] or
// [Engine.Login] to attach a freshly minted cookie.
//
// # Architecture boundaries
//
// goSession is the public surface. Cookie framing and key derivation live in package cookie;
// deadline evaluation lives in package session. User persistence is a caller-supplied
// [IdentityStore]; implementations ship under userstore/.
//
// # What this package must NOT do
//
//   - Store sessions server side. Cookies are the only session state.
//   - Tell clients why a cookie was rejected. Reasons go to logs, metrics and audit only.
//   - Log cookie values or key material.
//   - Alter the status or body a handler writes.
package goSession
