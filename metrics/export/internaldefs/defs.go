package internaldefs

import (
	castellan "github.com/castellan-dev/castellan"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   castellan.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   castellan.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: castellan.MetricLoginSuccess, Name: "castellan_login_success_total", Help: "Successful login attempts."},
	{ID: castellan.MetricLoginFailure, Name: "castellan_login_failure_total", Help: "Failed login attempts."},
	{ID: castellan.MetricLoginDelayed, Name: "castellan_login_delayed_total", Help: "Login attempts subjected to the escalating failure delay."},
	{ID: castellan.MetricForceLogin, Name: "castellan_force_login_total", Help: "Force-login operations."},
	{ID: castellan.MetricLogout, Name: "castellan_logout_total", Help: "Logout operations."},
	{ID: castellan.MetricLoadSuccess, Name: "castellan_load_success_total", Help: "Session loads resolving to a principal."},
	{ID: castellan.MetricLoadAnonymous, Name: "castellan_load_anonymous_total", Help: "Session loads resolving to anonymous."},
	{ID: castellan.MetricCookieAccepted, Name: "castellan_cookie_accepted_total", Help: "Accepted remember-me cookie challenges."},
	{ID: castellan.MetricCookieRejected, Name: "castellan_cookie_rejected_total", Help: "Rejected remember-me cookie challenges."},
	{ID: castellan.MetricSessionRegenerated, Name: "castellan_session_regenerated_total", Help: "Session identifier rotations."},
	{ID: castellan.MetricTicketRedeemed, Name: "castellan_ticket_redeemed_total", Help: "Redeemed force-login tickets."},
	{ID: castellan.MetricTicketRejected, Name: "castellan_ticket_rejected_total", Help: "Rejected force-login tickets."},
}

var HistogramDefs = []HistogramDef{
	{ID: castellan.MetricLoadLatency, Name: "castellan_load_latency_seconds", Help: "Session load latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
