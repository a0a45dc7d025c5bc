// Package internaldefs holds the metric names shared by the exporters.
package internaldefs

import (
	registroauth "github.com/scuolasuite/registroauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   registroauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   registroauth.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every exported counter.
var CounterDefs = []CounterDef{
	{ID: registroauth.MetricLoginSuccess, Name: "registroauth_login_success_total", Help: "Successful login attempts."},
	{ID: registroauth.MetricLoginFailure, Name: "registroauth_login_failure_total", Help: "Failed login attempts."},
	{ID: registroauth.MetricLoginBlocked, Name: "registroauth_login_blocked_total", Help: "Logins rejected by maintenance or time-window gates."},
	{ID: registroauth.MetricCSRFRejected, Name: "registroauth_csrf_rejected_total", Help: "Extractions failed on the anti-forgery check."},
	{ID: registroauth.MetricOTPSuccess, Name: "registroauth_otp_success_total", Help: "Accepted one-time codes."},
	{ID: registroauth.MetricOTPFailure, Name: "registroauth_otp_failure_total", Help: "Rejected one-time codes."},
	{ID: registroauth.MetricOTPReplay, Name: "registroauth_otp_replay_total", Help: "One-time codes rejected as immediate reuse."},
	{ID: registroauth.MetricCardExpired, Name: "registroauth_card_expired_total", Help: "Certificate logins past validity."},
	{ID: registroauth.MetricPreloginIssued, Name: "registroauth_prelogin_issued_total", Help: "Handoff tokens minted."},
	{ID: registroauth.MetricPreloginConsumed, Name: "registroauth_prelogin_consumed_total", Help: "Handoff tokens consumed successfully."},
	{ID: registroauth.MetricPreloginRejected, Name: "registroauth_prelogin_rejected_total", Help: "Handoff tokens rejected on consumption."},
	{ID: registroauth.MetricAssertionConsumed, Name: "registroauth_assertion_consumed_total", Help: "Federated assertions consumed."},
	{ID: registroauth.MetricAssertionReplay, Name: "registroauth_assertion_replay_total", Help: "Federated assertions presented when no longer active."},
	{ID: registroauth.MetricProfileLinked, Name: "registroauth_profile_linked_total", Help: "Logins that surfaced linked profiles."},
	{ID: registroauth.MetricSettingsReload, Name: "registroauth_settings_reload_total", Help: "Settings cache reloads."},
}

// HistogramDefs enumerates every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: registroauth.MetricAuthLatency, Name: "registroauth_auth_latency_seconds", Help: "End-to-end authentication latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds.
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

// HistogramBoundSuffix are the bound labels usable in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or trims a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
