// Package session implements the Redis-backed session store shared
// across requests.
//
// # Key layout
//
//	<prefix>:<sid>:<keyName>                 — logged-in username
//	<prefix>:<sid>:<keyName>_invalid_logins  — invalid-login counter
//	<prefix>:ticket:<jti>                    — one-time ticket tombstones
//
// Session identifiers are regenerated on successful login via a Lua
// script so the old identifier is invalidated atomically with the new
// one becoming valid.
//
// # What this package must NOT do
//
//   - Hold per-request auth state (principal, roles, flags) — that
//     lives in the request-scoped AuthSession.
//   - Decide auth outcomes; it only stores and moves opaque values.
package session
