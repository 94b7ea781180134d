package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/skydrive-labs/authcore/jwt"
)

const (
	auditEventLoginPending         = "login_pending"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginSuccess         = "login_success"
	auditEventMFAFailure           = "mfa_failure"
	auditEventMFAReplay            = "mfa_replay"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventLogoutSession        = "logout_session"
	auditEventDeviceRegistered     = "device_registered"
	auditEventDeviceVerified       = "device_verified"
	auditEventDeviceRevoked        = "device_revoked"
	auditEventDeviceRevokeDenied   = "device_revoke_denied"
	auditEventPasswordChange       = "password_change"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventEmailVerified        = "email_verified"
	auditEventTOTPProvisioned      = "totp_provisioned"
)

// AuditErrorCode is the stable error vocabulary carried in AuditEvent.Error.
// Sinks should match on these codes rather than on sentinel error text.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrTOTPInvalid        AuditErrorCode = "totp_invalid"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrResetTokenInvalid  AuditErrorCode = "reset_token_invalid"
	auditErrVerification       AuditErrorCode = "verification_invalid"
	auditErrDeviceNotFound     AuditErrorCode = "device_not_found"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrTOTPInvalid),
		errors.Is(err, ErrTOTPNotConfigured):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, jwt.ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrResetTokenInvalid):
		return auditErrResetTokenInvalid
	case errors.Is(err, ErrVerificationInvalid):
		return auditErrVerification
	case errors.Is(err, ErrDeviceNotFound):
		return auditErrDeviceNotFound
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrPendingLoginUnavailable),
		errors.Is(err, ErrBlacklistUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
