// Package password implements salted credential hashing and verification.
//
// # Schemes
//
// The primary scheme is hex(sha512(password ++ salt)) with an external
// per-user salt, the format existing account records carry. An argon2id
// PHC-encoded scheme backs the optional upgrade-on-login path:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.Verify] accepts both and compares in constant time.
// [Hasher.NeedsUpgrade] reports when a stored hash is still on the
// legacy scheme so the caller can re-hash on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive hashes.
//   - Import any other castellan package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
