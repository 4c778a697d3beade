// Package middleware exposes HTTP adapters over castellan.Engine:
// session loading and permission guards.
//
// # Components
//
//   - [Loader] — resolves the per-request AuthSession from the
//     session-ID and remember-me cookies and injects it into the
//     request context.
//   - [RequirePermission] — rejects requests lacking the named
//     permissions.
//   - [WriteCookies] — flushes pending auth cookies to the response.
//
// # What this package must NOT do
//
//   - Implement authentication logic; all decisions belong to the
//     engine.
//   - Access Redis directly.
package middleware
