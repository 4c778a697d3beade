// Package ticket issues and verifies one-time force-login tickets.
//
// A ticket is a short-lived HS256 token naming a username. Redeeming
// one logs that user in without a password, which makes tickets suited
// to password-reset links and operator impersonation flows. Each ticket
// carries a unique jti; the engine records redeemed jtis in Redis so a
// captured ticket cannot be replayed.
package ticket
