package internaldefs

import (
	"github.com/MrEthical07/authgate"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricFlowStarted, Name: "authgate_flow_started_total", Help: "Sign-in flows started."},
	{ID: authgate.MetricFlowRateLimited, Name: "authgate_flow_rate_limited_total", Help: "Sign-in flows rejected by the per-IP rate limit."},
	{ID: authgate.MetricCallbackSuccess, Name: "authgate_callback_success_total", Help: "Provider callbacks that issued a session."},
	{ID: authgate.MetricCallbackRestart, Name: "authgate_callback_restart_total", Help: "Provider callbacks that asked the user to restart."},
	{ID: authgate.MetricCallbackUnverifiedEmail, Name: "authgate_callback_unverified_email_total", Help: "Provider callbacks rejected for an unverified email."},
	{ID: authgate.MetricCallbackSameEmail, Name: "authgate_callback_same_email_total", Help: "Provider callbacks rejected because the email belongs to another account."},
	{ID: authgate.MetricCallbackFailure, Name: "authgate_callback_failure_total", Help: "Provider callbacks that failed unexpectedly."},
	{ID: authgate.MetricUserCreated, Name: "authgate_user_created_total", Help: "Users created on first sign-in."},
	{ID: authgate.MetricSessionCreated, Name: "authgate_session_created_total", Help: "Created sessions."},
	{ID: authgate.MetricSessionValidated, Name: "authgate_session_validated_total", Help: "Successful session validations."},
	{ID: authgate.MetricSessionExtended, Name: "authgate_session_extended_total", Help: "Validations that slid a session's expiry."},
	{ID: authgate.MetricSessionExpired, Name: "authgate_session_expired_total", Help: "Validations that found an expired session."},
	{ID: authgate.MetricSessionInvalidated, Name: "authgate_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Single-session logout operations."},
	{ID: authgate.MetricLogoutAll, Name: "authgate_logout_all_total", Help: "Revoke-all operations."},
	{ID: authgate.MetricOriginRejected, Name: "authgate_origin_rejected_total", Help: "Requests rejected for an unregistered origin."},
	{ID: authgate.MetricUnauthorized, Name: "authgate_unauthorized_total", Help: "Requests without a live session."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricValidateLatency, Name: "authgate_validate_latency_seconds", Help: "Session validation latency."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "authgate_audit_dropped_total"

// HistogramBounds are the "le" labels of the latency buckets, in seconds.
var HistogramBounds = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets pads or truncates raw to the eight engine buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
