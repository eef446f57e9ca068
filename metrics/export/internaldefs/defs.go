package internaldefs

import (
	authcore "github.com/vitrin-labs/authcore"
)

// CounterDef binds a core metric ID to its stable exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its stable exported name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Order is render order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricMFARequired, Name: "authcore_mfa_required_total", Help: "Login flows requiring MFA step-up."},
	{ID: authcore.MetricMFAFailure, Name: "authcore_mfa_failure_total", Help: "Failed MFA confirmations."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful token refresh operations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed token refresh operations."},
	{ID: authcore.MetricRefreshCoalesced, Name: "authcore_refresh_coalesced_total", Help: "Callers that joined an in-flight refresh."},
	{ID: authcore.MetricRetryAfter401, Name: "authcore_retry_after_401_total", Help: "Requests replayed once after an unauthorized response."},
	{ID: authcore.MetricStorageIntegrityFailure, Name: "authcore_storage_integrity_failure_total", Help: "Detected credential vault integrity failures."},
	{ID: authcore.MetricFingerprintMismatch, Name: "authcore_fingerprint_mismatch_total", Help: "Device fingerprint mismatches during validation."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionValidated, Name: "authcore_session_validated_total", Help: "Successful session validation passes."},
	{ID: authcore.MetricSessionExpired, Name: "authcore_session_expired_total", Help: "Sessions expired by inactivity."},
	{ID: authcore.MetricSessionTerminated, Name: "authcore_session_terminated_total", Help: "Involuntarily terminated sessions."},
	{ID: authcore.MetricValidationFailure, Name: "authcore_validation_failure_total", Help: "Failed session validation passes."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Session validation latency histogram."},
}

// HistogramBounds are the upper bounds in seconds, Prometheus le label
// form. Must stay aligned with the core bucket boundaries.
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

// HistogramBoundSuffix are the bounds as OTel-safe name suffixes.
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

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative
// form Prometheus histograms require.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
