// Package castellan is an embeddable session-based authentication
// engine for Go web applications.
//
// The application supplies a PrincipalProvider over its own user
// storage and a Redis client; castellan owns everything else: salted
// credential verification with optional Argon2id upgrade, server-side
// sessions with identifier rotation on login, signed remember-me
// cookies, escalating delays after failed attempts, role-based
// permission checks with a superuser bypass, one-time force-login
// tickets, and async audit events.
//
// # Usage
//
//	engine, err := castellan.New().
//		WithRedis(client).
//		WithProvider(provider).
//		Build()
//	if err != nil {
//		// wiring error
//	}
//	defer engine.Close()
//
//	as := engine.Session(sid, castellan.SecureTransport(r.TLS != nil))
//	if as.Login(ctx, username, password, true) {
//		// write as.PendingCookies() to the response
//	}
//
// Outcomes of Login, Load and Logout are booleans on purpose: callers
// get logged-in or logged-out, never the reason, so a login form leaks
// nothing about which part of the credentials was wrong.
package castellan
