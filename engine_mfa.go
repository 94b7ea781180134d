package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skydrive-labs/authcore/internal"
	"github.com/skydrive-labs/authcore/internal/stores"
)

// VerifyTOTP runs the second step of the two-step login. It resolves the
// pending login staged by [Engine.VerifyCredentials], checks the TOTP code,
// and consumes the pending entry exactly once before issuing the token pair
// and persisting the session.
//
// A wrong code leaves the pending entry in place so the user can retry within
// the TTL. A missing, expired, or already-consumed token reports
// ErrInvalidCredentials; the caller must restart the login.
func (e *Engine) VerifyTOTP(ctx context.Context, sessionToken, code string) (*TokenPair, error) {
	if e == nil || e.users == nil || e.sessions == nil || e.pending == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}
	if sessionToken == "" {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "missing_session_token",
			}
		})
		return nil, ErrInvalidCredentials
	}

	record, err := e.pending.Get(ctx, sessionToken)
	if err != nil {
		mapped := mapPendingStoreError(err)
		if errors.Is(err, stores.ErrPendingLoginExpired) {
			e.metricInc(MetricMFAExpired)
		}
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, "", "", mapped, func() map[string]string {
			return map[string]string{
				"reason": "pending_load_failed",
			}
		})
		return nil, mapped
	}

	user, err := e.users.FindByID(ctx, record.UserID)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, record.UserID, "", err, nil)
		return nil, err
	}
	if user == nil {
		_, _ = e.pending.Consume(ctx, sessionToken)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, record.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "user_gone",
			}
		})
		return nil, ErrInvalidCredentials
	}
	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		_, _ = e.pending.Consume(ctx, sessionToken)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}
	if user.TOTPSecret == "" {
		_, _ = e.pending.Consume(ctx, sessionToken)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, "", ErrTOTPNotConfigured, nil)
		return nil, ErrTOTPNotConfigured
	}

	if !e.totp.Verify(code, user.TOTPSecret, time.Now()) {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, "", ErrTOTPInvalid, func() map[string]string {
			return map[string]string{
				"reason": "code_mismatch",
			}
		})
		return nil, ErrTOTPInvalid
	}

	// Single-use: whichever caller removes the entry wins; everyone else is
	// treated as a replay, even with a valid code.
	consumed, err := e.pending.Consume(ctx, sessionToken)
	if err != nil {
		mapped := mapPendingStoreError(err)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, "", mapped, nil)
		return nil, mapped
	}
	if !consumed {
		e.metricInc(MetricMFAReplay)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAReplay, false, user.ID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	pair, sessionID, err := e.issueSessionTokens(ctx, user)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, sessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricMFASuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, sessionID, nil, nil)

	return pair, nil
}

// ProvisionTOTP generates a fresh TOTP secret for the user and persists it,
// replacing any previous secret. The returned URL is the otpauth:// URI the
// caller renders as a QR code.
func (e *Engine) ProvisionTOTP(ctx context.Context, userID string) (*TOTPProvisioning, error) {
	if e == nil || e.users == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown user", ErrValidation)
	}

	prov, err := e.totp.Generate(e.config.TOTP.Issuer, user.Email)
	if err != nil {
		return nil, err
	}
	if err := e.users.UpdateTOTPSecret(ctx, user.ID, prov.Secret); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTOTPProvisioned, true, user.ID, "", nil, nil)

	return prov, nil
}

// issueSessionTokens mints the JWT pair and persists the session row. If a
// device fingerprint rides on ctx and matches a known device, the session is
// linked to it and the device's last-used timestamp advances.
func (e *Engine) issueSessionTokens(ctx context.Context, user *User) (*TokenPair, string, error) {
	access, err := e.jwtManager.CreateAccess(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}
	refresh, err := e.jwtManager.CreateRefresh(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	sess := &Session{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		RefreshTokenHash: internal.HashToken(refresh),
		AccessTokenHash:  internal.HashToken(access),
		IPAddress:        clientIPFromContext(ctx),
		UserAgent:        userAgentFromContext(ctx),
		CreatedAt:        now,
		ExpiresAt:        now.Add(e.config.JWT.RefreshTTL),
		LastActivityAt:   now,
	}

	if fp := deviceFingerprintFromContext(ctx); fp != "" && e.devices != nil {
		device, derr := e.devices.FindByFingerprint(ctx, user.ID, fp)
		if derr != nil {
			e.warn("device lookup failed for user %s: %v", user.ID, derr)
		} else if device != nil && device.RevokedAt == nil {
			sess.DeviceID = device.ID
			device.LastUsedAt = now
			if serr := e.devices.Save(ctx, device); serr != nil {
				e.warn("device last-used update failed for device %s: %v", device.ID, serr)
			}
		}
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, sess.ID, err
	}

	return &TokenPair{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(e.config.JWT.AccessTTL.Seconds()),
	}, sess.ID, nil
}
