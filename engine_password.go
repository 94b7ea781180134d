package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skydrive-labs/authcore/internal"
	"github.com/skydrive-labs/authcore/password"
)

// RequestPasswordReset mints a reset token for the account and hands it to
// the mailer. It reports success for unknown addresses too: the existence of
// an account is not observable through this operation.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	token, err := internal.NewVerificationToken()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(e.config.Reset.TokenTTL)
	if err := e.users.UpdatePasswordResetToken(ctx, user.ID, token, expiresAt); err != nil {
		return err
	}

	if e.mailer != nil {
		if err := e.mailer.Send(user.Email, "Password reset", resetMailBody(token)); err != nil {
			e.warn("password reset mail failed for user %s: %v", user.ID, err)
		}
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, "", nil, nil)
	return nil
}

// ResetPassword consumes a reset token and installs the new password. A reset
// is a full trust-reestablishment event: besides replacing the hash and
// clearing the token, it zeroes the failed-login counter and unlocks the
// account.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.users == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrResetTokenInvalid
	}

	user, err := e.users.FindByPasswordResetToken(ctx, token)
	if err != nil {
		return err
	}
	if user == nil || time.Now().After(user.PasswordResetExpiresAt) {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", ErrResetTokenInvalid, nil)
		return ErrResetTokenInvalid
	}

	newHash, err := e.hashNewPassword(ctx, user, newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.ID, "", err, nil)
		return err
	}

	previousHash := user.PasswordHash
	user.PasswordHash = newHash
	user.PasswordResetToken = ""
	user.PasswordResetExpiresAt = time.Time{}
	if err := e.users.Save(ctx, user); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.ID, "", err, nil)
		return err
	}
	if err := e.users.ResetFailedLoginAttempts(ctx, user.ID); err != nil {
		e.warn("failed login counter reset failed for user %s: %v", user.ID, err)
	}
	if err := e.users.UnlockAccount(ctx, user.ID); err != nil {
		e.warn("account unlock failed for user %s: %v", user.ID, err)
	}

	e.recordPasswordHistory(ctx, user.ID, previousHash)

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, "", nil, nil)
	return nil
}

// ChangePassword replaces the password of an authenticated user after
// re-checking the current one.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil || e.users == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: unknown user", ErrValidation)
	}

	ok, err := e.passwordHash.Verify(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventPasswordChange, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "old_password_mismatch",
			}
		})
		return ErrInvalidCredentials
	}

	newHash, err := e.hashNewPassword(ctx, user, newPassword)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChange, false, user.ID, "", err, nil)
		return err
	}

	previousHash := user.PasswordHash
	user.PasswordHash = newHash
	if err := e.users.Save(ctx, user); err != nil {
		e.emitAudit(ctx, auditEventPasswordChange, false, user.ID, "", err, nil)
		return err
	}

	e.recordPasswordHistory(ctx, user.ID, previousHash)

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, user.ID, "", nil, nil)
	return nil
}

// hashNewPassword enforces length bounds and the reuse policy, then returns
// the new hash. The current password counts as "recent" even when the history
// table is empty.
func (e *Engine) hashNewPassword(ctx context.Context, user *User, plain string) (string, error) {
	newHash, err := e.passwordHash.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrBounds) {
			return "", fmt.Errorf("%w: password length out of bounds", ErrValidation)
		}
		return "", err
	}

	if ok, verr := e.passwordHash.Verify(plain, user.PasswordHash); verr == nil && ok {
		e.metricInc(MetricPasswordReuseRejected)
		return "", ErrPasswordReuse
	}

	depth := e.config.Password.HistoryDepth
	if depth > 0 && e.history != nil {
		entries, herr := e.history.GetRecentPasswords(ctx, user.ID, depth)
		if herr != nil {
			return "", herr
		}
		for i := range entries {
			if ok, verr := e.passwordHash.Verify(plain, entries[i].PasswordHash); verr == nil && ok {
				e.metricInc(MetricPasswordReuseRejected)
				return "", ErrPasswordReuse
			}
		}
	}

	return newHash, nil
}

// recordPasswordHistory retires the replaced hash into the history table and
// prunes the retained set to the configured depth. Best-effort: the password
// change itself is already durable.
func (e *Engine) recordPasswordHistory(ctx context.Context, userID, hash string) {
	depth := e.config.Password.HistoryDepth
	if depth <= 0 || e.history == nil {
		return
	}

	entry := &PasswordHistoryEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := e.history.Save(ctx, entry); err != nil {
		e.warn("password history append failed for user %s: %v", userID, err)
		return
	}
	if err := e.history.ClearOldPasswords(ctx, userID, depth); err != nil {
		e.warn("password history prune failed for user %s: %v", userID, err)
	}
}

func resetMailBody(token string) string {
	return "A password reset was requested for your account.\n\n" +
		"Reset token: " + token + "\n\n" +
		"If you did not request this, you can ignore this message."
}
