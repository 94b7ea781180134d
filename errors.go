package authcore

import "errors"

var (
	// ErrInvalidCredentials covers every failure mode of the credential path:
	// unknown email, malformed email, wrong password, missing or expired
	// pending-login token, and invalid refresh tokens. Collapsing these into
	// one sentinel with one message is deliberate enumeration resistance.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTOTPInvalid is returned when the second factor is wrong for an
	// already-identified user. Distinct from ErrInvalidCredentials because the
	// pending token has proven the first factor.
	ErrTOTPInvalid = errors.New("invalid totp code")
	// ErrForbidden is returned when an authenticated caller targets a resource
	// owned by another user.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation wraps malformed-input failures such as password length
	// bounds. Inspect with errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrAccountLocked is returned after the password already matched, so it
	// does not reveal account existence to unauthenticated probing.
	ErrAccountLocked = errors.New("account locked")
	// ErrPasswordReuse rejects a new password matching one of the retained
	// history entries.
	ErrPasswordReuse = errors.New("password was used recently")
	// ErrResetTokenInvalid covers unknown and expired password reset tokens.
	ErrResetTokenInvalid = errors.New("password reset token invalid")
	// ErrVerificationInvalid covers unknown and expired email or device
	// verification tokens.
	ErrVerificationInvalid = errors.New("verification token invalid")
	// ErrDeviceNotFound is returned by device operations for unknown device IDs.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrSessionNotFound is returned by session lookups inside trusted flows.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTOTPNotConfigured is returned when a flow requires a TOTP secret the
	// user has not provisioned.
	ErrTOTPNotConfigured = errors.New("totp not configured")
	// ErrPendingLoginUnavailable signals an externalized pending-login store
	// backend failure.
	ErrPendingLoginUnavailable = errors.New("pending login backend unavailable")
	// ErrBlacklistUnavailable signals an externalized blacklist backend failure.
	ErrBlacklistUnavailable = errors.New("token blacklist backend unavailable")
	// ErrEngineNotReady is returned when an Engine method is called before
	// Builder.Build completed.
	ErrEngineNotReady = errors.New("engine not initialized")
)
