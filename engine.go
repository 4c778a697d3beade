package castellan

import (
	"context"
	"fmt"
	"time"

	"github.com/castellan-dev/castellan/cookie"
	"github.com/castellan-dev/castellan/internal/audit"
	"github.com/castellan-dev/castellan/password"
	"github.com/castellan-dev/castellan/permission"
	"github.com/castellan-dev/castellan/session"
	"github.com/castellan-dev/castellan/throttle"
	"github.com/castellan-dev/castellan/ticket"
)

// Engine owns the long-lived collaborators: the Redis session store,
// the password hasher, the cookie codec, the permission evaluator and
// the failure throttle. It is safe for concurrent use; per-request
// state lives in AuthSession values created by Session.
type Engine struct {
	config    Config
	provider  PrincipalProvider
	store     *session.Store
	hasher    *password.Hasher
	codec     *cookie.Codec
	evaluator *permission.Evaluator
	throttle  *throttle.Throttle
	tickets   *ticket.Issuer
	audit     *audit.Dispatcher
	metrics   *Metrics
}

// SessionOption customizes an AuthSession at creation.
type SessionOption func(*AuthSession)

// SecureTransport marks the request as having arrived over TLS, which
// makes emitted cookies Secure even without Cookie.ForceSecure.
func SecureTransport(secure bool) SessionOption {
	return func(as *AuthSession) {
		as.secure = secure
	}
}

// Session binds the engine to one request's session ID. The returned
// AuthSession starts logged out; call Load or Login to establish
// identity.
func (e *Engine) Session(sid string, opts ...SessionOption) *AuthSession {
	as := &AuthSession{
		engine: e,
		sid:    sid,
	}
	for _, opt := range opts {
		opt(as)
	}
	return as
}

// NewSessionID generates a fresh random session identifier for
// requests that arrive without one.
func (e *Engine) NewSessionID() string {
	return session.NewID()
}

// Config returns a copy of the engine's effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Ping verifies the Redis session backend is reachable and reports
// the round-trip time. Failures wrap ErrSessionUnavailable.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	d, err := e.store.Ping(ctx)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return d, nil
}

// IssueTicket mints a one-time force-login ticket for the username,
// for handing to a trusted peer process. Returns ErrTicketsDisabled
// when the ticket subsystem is not configured.
func (e *Engine) IssueTicket(username string) (string, error) {
	if e.tickets == nil {
		return "", ErrTicketsDisabled
	}
	return e.tickets.Issue(username)
}

// MetricsSnapshot returns a point-in-time copy of all counters, for
// exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because
// the dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Close drains and stops the audit dispatcher. Redis connections are
// owned by the caller and are not closed here.
func (e *Engine) Close() {
	e.audit.Close()
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, userID int64, username, sid string, success bool, errMsg string) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(ctx, audit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		Username:  username,
		SessionID: sid,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Error:     errMsg,
	})
}

// isAdminRoles reports whether the given principal would be treated as
// administrative: the superuser always is, and otherwise any role
// granting Login.AdminPermission qualifies.
func (e *Engine) isAdminRoles(id int64, roles []permission.Role) bool {
	return e.evaluator.Has(id, roles, e.config.Login.AdminPermission)
}
