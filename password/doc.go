// Package password hashes and verifies album account passwords with Argon2id.
//
// # Output format
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and hash are unpadded standard base64, matching what other Argon2 tooling emits.
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters so the login handler
// can re-hash after a successful verification.
//
// # What this package must NOT do
//
//   - Store or fetch users. Callers pass plaintext and stored hashes.
//   - Import the goSession engine.
//   - Log plaintext passwords.
package password
