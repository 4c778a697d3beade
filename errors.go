package castellan

import "errors"

var (
	// ErrPrincipalNotFound is returned by PrincipalProvider implementations
	// when no account matches the given identifier.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrSessionUnavailable wraps Ping failures when the Redis session
	// backend cannot be reached.
	ErrSessionUnavailable = errors.New("session backend unavailable")
	// ErrTicketsDisabled is returned by IssueTicket when the ticket
	// subsystem is not configured.
	ErrTicketsDisabled = errors.New("force-login tickets disabled")
)
