package internaldefs

import (
	"github.com/nebryx/authz"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authz.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   authz.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authz.MetricAuthorizeSuccess, Name: "authz_authorize_success_total", Help: "Requests authorized."},
	{ID: authz.MetricAuthorizeFailure, Name: "authz_authorize_failure_total", Help: "Requests rejected by Authorize."},
	{ID: authz.MetricPathBypassed, Name: "authz_path_bypassed_total", Help: "Requests passed by the rules file without authentication."},
	{ID: authz.MetricPathBlocked, Name: "authz_path_blocked_total", Help: "Requests blocked by the rules file."},
	{ID: authz.MetricSessionAuth, Name: "authz_session_auth_total", Help: "Requests authenticated by session cookie."},
	{ID: authz.MetricAPIKeyAuth, Name: "authz_apikey_auth_total", Help: "Requests authenticated by API key."},
	{ID: authz.MetricCSRFRejected, Name: "authz_csrf_rejected_total", Help: "Requests with a missing or wrong CSRF token."},
	{ID: authz.MetricSessionMismatch, Name: "authz_session_mismatch_total", Help: "Sessions used from another client or after expiry."},
	{ID: authz.MetricNonceRejected, Name: "authz_nonce_rejected_total", Help: "API key requests with an invalid or stale nonce."},
	{ID: authz.MetricSignatureRejected, Name: "authz_signature_rejected_total", Help: "API key requests with a bad signature."},
	{ID: authz.MetricPermissionDenied, Name: "authz_permission_denied_total", Help: "Requests denied by the permission table."},
	{ID: authz.MetricTokenIssued, Name: "authz_token_issued_total", Help: "Bearer tokens minted."},
	{ID: authz.MetricLoginSuccess, Name: "authz_login_success_total", Help: "Successful logins."},
	{ID: authz.MetricLoginFailure, Name: "authz_login_failure_total", Help: "Failed logins."},
	{ID: authz.MetricLoginRateLimited, Name: "authz_login_rate_limited_total", Help: "Logins rejected by the limiter."},
	{ID: authz.MetricLogout, Name: "authz_logout_total", Help: "Sessions closed by logout."},
	{ID: authz.MetricSessionInvalidated, Name: "authz_session_invalidated_total", Help: "Sessions removed in bulk."},
	{ID: authz.MetricPasswordUpgraded, Name: "authz_password_upgraded_total", Help: "Password digests rehashed on login."},
	{ID: authz.MetricPasswordChanged, Name: "authz_password_changed_total", Help: "Password changes."},
	{ID: authz.MetricRegistration, Name: "authz_registration_total", Help: "Principals registered."},
	{ID: authz.MetricTOTPSuccess, Name: "authz_totp_success_total", Help: "Accepted TOTP codes."},
	{ID: authz.MetricTOTPFailure, Name: "authz_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: authz.MetricTOTPRateLimited, Name: "authz_totp_rate_limited_total", Help: "TOTP checks rejected by the attempt limiter."},
	{ID: authz.MetricTOTPEnabled, Name: "authz_totp_enabled_total", Help: "Two-factor enablements."},
	{ID: authz.MetricTOTPDisabled, Name: "authz_totp_disabled_total", Help: "Two-factor disablements."},
	{ID: authz.MetricAPIKeyCreated, Name: "authz_apikey_created_total", Help: "API keys created."},
	{ID: authz.MetricAPIKeyRevoked, Name: "authz_apikey_revoked_total", Help: "API keys deactivated."},
	{ID: authz.MetricPermissionWrite, Name: "authz_permission_write_total", Help: "Permission rule writes."},
	{ID: authz.MetricRulesReloaded, Name: "authz_rules_reloaded_total", Help: "Rules file reloads."},
}

var HistogramDefs = []HistogramDef{
	{ID: authz.MetricAuthorizeLatency, Name: "authz_authorize_latency_seconds", Help: "Authorize latency."},
}

// HistogramBounds are the finite upper bounds, in seconds, of the first seven
// buckets. The eighth bucket is unbounded.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

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
