package castellan

import (
	"io"

	"github.com/castellan-dev/castellan/internal/audit"
)

// AuditEvent is the record handed to audit sinks.
type AuditEvent = audit.Event

// AuditSink receives emitted audit events. Sinks run on the
// dispatcher goroutine and must not block indefinitely.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events for in-process consumers.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink returns a sink backed by a channel with the given
// buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that serializes events to w as
// newline-delimited JSON.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// Audit event types emitted by the engine.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailure       = "login_failure"
	EventLoginDelayed       = "login_delayed"
	EventForceLogin         = "force_login"
	EventLogout             = "logout"
	EventCookieAccepted     = "cookie_accepted"
	EventCookieRejected     = "cookie_rejected"
	EventSessionRegenerated = "session_regenerated"
	EventTicketRedeemed     = "ticket_redeemed"
	EventTicketRejected     = "ticket_rejected"
)
