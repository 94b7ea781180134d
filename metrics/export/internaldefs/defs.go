package internaldefs

import (
	"github.com/skydrive-labs/authcore"
)

// CounterDef binds a core counter to its exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram to its exported name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginPending, Name: "authcore_login_pending_total", Help: "Password checks that staged a pending login."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed credential checks."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Logins rejected because the account is locked."},
	{ID: authcore.MetricMFASuccess, Name: "authcore_mfa_success_total", Help: "Successful TOTP confirmations."},
	{ID: authcore.MetricMFAFailure, Name: "authcore_mfa_failure_total", Help: "Failed TOTP confirmations."},
	{ID: authcore.MetricMFAReplay, Name: "authcore_mfa_replay_total", Help: "Pending-login replay attempts."},
	{ID: authcore.MetricMFAExpired, Name: "authcore_mfa_expired_total", Help: "TOTP confirmations against expired pending logins."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed token rotations."},
	{ID: authcore.MetricRefreshBlacklisted, Name: "authcore_refresh_blacklisted_total", Help: "Rotations rejected by the blacklist."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Revoked sessions."},
	{ID: authcore.MetricDeviceRegistered, Name: "authcore_device_registered_total", Help: "Registered devices."},
	{ID: authcore.MetricDeviceVerified, Name: "authcore_device_verified_total", Help: "Verified devices."},
	{ID: authcore.MetricDeviceRevoked, Name: "authcore_device_revoked_total", Help: "Revoked devices."},
	{ID: authcore.MetricDeviceRevokeDenied, Name: "authcore_device_revoke_denied_total", Help: "Device revocations rejected for ownership or existence."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordReuseRejected, Name: "authcore_password_reuse_rejected_total", Help: "New passwords rejected by the history policy."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Successful password reset confirmations."},
	{ID: authcore.MetricPasswordResetFailure, Name: "authcore_password_reset_failure_total", Help: "Failed password reset confirmations."},
	{ID: authcore.MetricEmailVerified, Name: "authcore_email_verified_total", Help: "Successful email verifications."},
	{ID: authcore.MetricEmailVerificationFailure, Name: "authcore_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: authcore.MetricValidateSuccess, Name: "authcore_validate_success_total", Help: "Successful access-token validations."},
	{ID: authcore.MetricValidateFailure, Name: "authcore_validate_failure_total", Help: "Failed access-token validations."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Access-token validation latency histogram."},
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

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed bucket
// count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form the
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
