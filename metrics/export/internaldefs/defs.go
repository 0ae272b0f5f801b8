package internaldefs

import (
	accountd "github.com/swaptacular/accountd"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   accountd.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name.
type HistogramDef struct {
	ID   accountd.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: accountd.MetricSignupStarted, Name: "accountd_signup_started_total", Help: "Signup and recovery mails requested."},
	{ID: accountd.MetricSignupAccepted, Name: "accountd_signup_accepted_total", Help: "Accounts created through the signup flow."},
	{ID: accountd.MetricSignupDuplicate, Name: "accountd_signup_duplicate_total", Help: "Signups that hit an already registered email."},
	{ID: accountd.MetricRecoveryAccepted, Name: "accountd_recovery_accepted_total", Help: "Completed password recoveries."},
	{ID: accountd.MetricVerificationSent, Name: "accountd_verification_sent_total", Help: "Mailed login verification codes."},
	{ID: accountd.MetricVerificationSuccess, Name: "accountd_verification_success_total", Help: "Accepted verification codes."},
	{ID: accountd.MetricVerificationFailure, Name: "accountd_verification_failure_total", Help: "Rejected verification codes."},
	{ID: accountd.MetricVerificationExceeded, Name: "accountd_verification_exceeded_total", Help: "Verification records killed by the attempt cap."},
	{ID: accountd.MetricEmailChangeStarted, Name: "accountd_email_change_started_total", Help: "Email-change confirmation mails requested."},
	{ID: accountd.MetricEmailChangeAccepted, Name: "accountd_email_change_accepted_total", Help: "Committed email changes."},
	{ID: accountd.MetricLoginAccepted, Name: "accountd_login_accepted_total", Help: "Login challenges accepted with the authorization server."},
	{ID: accountd.MetricLoginRejected, Name: "accountd_login_rejected_total", Help: "Login challenges rejected."},
	{ID: accountd.MetricLoginOverQuota, Name: "accountd_login_over_quota_total", Help: "Logins converted to rejection by the monthly cap."},
	{ID: accountd.MetricConsentAccepted, Name: "accountd_consent_accepted_total", Help: "Accepted consent challenges."},
	{ID: accountd.MetricSignalsDispatched, Name: "accountd_signals_dispatched_total", Help: "Outbox signal rows delivered to subscribers."},
}

// HistogramDefs lists every exported histogram in render order.
var HistogramDefs = []HistogramDef{
	{ID: accountd.MetricLoginLatency, Name: "accountd_login_latency_seconds", Help: "PerformLogin round-trip latency histogram."},
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

// HistogramBoundSuffix are the bound labels usable inside metric names.
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
