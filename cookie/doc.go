// Package cookie implements the remember-token codec: construction,
// parsing, and verification of the signed, expiring cookie value that
// keeps a principal logged in across sessions.
//
// # Wire format
//
//	exp=<unix-seconds>&id=<user-id>&digest=<64 hex chars>
//
// Verification re-bakes the value from the referenced principal's fields
// and compares byte-for-byte in constant time; a token is accepted only
// when the comparison holds and the expiry lies strictly in the future.
//
// # What this package must NOT do
//
//   - Touch HTTP. Cookie attributes (Path, Secure, HttpOnly, SameSite)
//     are assembled by the root package.
//   - Look up principals itself — resolution goes through a caller
//     supplied [Lookup].
package cookie
