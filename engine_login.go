package authcore

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/skydrive-labs/authcore/internal"
	"github.com/skydrive-labs/authcore/internal/stores"
)

// VerifyCredentials runs the first step of the two-step login. It checks the
// password and, on success, stages a pending login and returns its opaque
// session token. No JWTs are issued here; the caller must confirm the second
// factor via [Engine.VerifyTOTP] before the pending entry expires.
//
// Every credential failure reports ErrInvalidCredentials with no further
// detail. Only a locked account is named, and only after the password
// matched, so probing without the password learns nothing.
func (e *Engine) VerifyCredentials(ctx context.Context, email, pass string) (*PendingLoginResult, error) {
	if e == nil || e.users == nil || e.passwordHash == nil || e.pending == nil {
		return nil, ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "malformed_email",
			}
		})
		return nil, ErrInvalidCredentials
	}
	if pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": "empty_password",
			}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "user_lookup_failed",
			}
		})
		return nil, err
	}
	if user == nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": "user_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.recordFailedLogin(ctx, user)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "password_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}
	e.maybeRehash(ctx, user, pass)
	pass = ""

	// Lock status is only disclosed once the password has proven the caller
	// already knows the credentials.
	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"reason": "account_locked",
			}
		})
		return nil, ErrAccountLocked
	}

	if user.FailedLoginAttempts > 0 {
		if err := e.users.ResetFailedLoginAttempts(ctx, user.ID); err != nil {
			e.warn("failed login counter reset failed for user %s: %v", user.ID, err)
		}
	}

	token, err := internal.NewPendingToken()
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "token_generation",
			}
		})
		return nil, err
	}

	now := time.Now()
	ttl := e.config.PendingLogin.TTL
	record := &stores.PendingLogin{
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	if err := e.pending.Save(ctx, token, record, ttl); err != nil {
		mapped := mapPendingStoreError(err)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", mapped, func() map[string]string {
			return map[string]string{
				"reason": "pending_save_failed",
			}
		})
		return nil, mapped
	}

	e.metricInc(MetricLoginPending)
	e.emitAudit(ctx, auditEventLoginPending, true, user.ID, "", nil, nil)

	return &PendingLoginResult{
		SessionToken: token,
		ExpiresIn:    int(ttl.Seconds()),
	}, nil
}

// recordFailedLogin bumps the per-user failure counter. Best-effort: a
// storage failure here must not change the caller-visible outcome.
func (e *Engine) recordFailedLogin(ctx context.Context, user *User) {
	user.FailedLoginAttempts++
	if err := e.users.Save(ctx, user); err != nil {
		e.warn("failed login counter update failed for user %s: %v", user.ID, err)
	}
}

// maybeRehash upgrades the stored hash in place when the active cost
// parameters are stronger than the ones that produced it. Best-effort; the
// login outcome never depends on it.
func (e *Engine) maybeRehash(ctx context.Context, user *User, plain string) {
	upgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	rehashed, err := e.passwordHash.Hash(plain)
	if err != nil {
		return
	}
	user.PasswordHash = rehashed
	if err := e.users.Save(ctx, user); err != nil {
		e.warn("password rehash save failed for user %s: %v", user.ID, err)
	}
}

func mapPendingStoreError(err error) error {
	switch {
	case errors.Is(err, stores.ErrPendingLoginNotFound),
		errors.Is(err, stores.ErrPendingLoginExpired):
		return ErrInvalidCredentials
	case errors.Is(err, stores.ErrPendingLoginBackend):
		return ErrPendingLoginUnavailable
	default:
		return ErrPendingLoginUnavailable
	}
}
