// Package cookie seals identity payloads into opaque HTTP cookie values and opens them again.
//
// # Formats
//
// Two encoding generations coexist:
//
//   - [FormatLegacy] carries only the bare identity string. It is sealed with the legacy key
//     generation through gorilla/securecookie (HMAC-SHA256 over AES-256-CTR ciphertext, bound to
//     the cookie name).
//   - [FormatStructured] carries a versioned JSON record with optional login and visit
//     timestamps. It is sealed with the current key generation using XChaCha20-Poly1305 with
//     the cookie name as associated data.
//
// Both generations are derived from one master secret by [NewKeyring]. The format used for a
// given cookie is chosen by the caller's policy, never by inspecting the wire bytes.
//
// # Architecture boundaries
//
// This package owns key derivation, framing and cookie attributes. It does NOT evaluate
// deadlines, look up users or touch request state; those belong to the session package and the
// Engine.
//
// # What this package must NOT do
//
//   - Log, print or serialize key material.
//   - Return error text that callers forward to clients.
//   - Accept a value whose authentication tag does not verify.
package cookie
