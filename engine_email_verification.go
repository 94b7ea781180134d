package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/skydrive-labs/authcore/internal"
)

// RequestEmailVerification mints a verification token for an unverified
// account and hands it to the mailer. Requesting again replaces any earlier
// token. An already-verified account is a silent no-op.
func (e *Engine) RequestEmailVerification(ctx context.Context, userID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: unknown user", ErrValidation)
	}
	if user.EmailVerified {
		return nil
	}

	token, err := internal.NewVerificationToken()
	if err != nil {
		return err
	}
	user.EmailVerificationToken = token
	user.EmailVerificationExpiresAt = time.Now().Add(e.config.Verification.TokenTTL)
	if err := e.users.Save(ctx, user); err != nil {
		return err
	}

	if e.mailer != nil {
		if err := e.mailer.Send(user.Email, "Verify your email", verificationMailBody(token)); err != nil {
			e.warn("verification mail failed for user %s: %v", user.ID, err)
		}
	}

	return nil
}

// VerifyEmail consumes an email verification token. Consuming marks the
// account verified and clears the token; unknown and expired tokens fail with
// ErrVerificationInvalid.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrVerificationInvalid
	}

	user, err := e.users.FindByEmailVerificationToken(ctx, token)
	if err != nil {
		return err
	}
	if user == nil || time.Now().After(user.EmailVerificationExpiresAt) {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerified, false, "", "", ErrVerificationInvalid, nil)
		return ErrVerificationInvalid
	}

	if err := e.users.MarkEmailAsVerified(ctx, user.ID); err != nil {
		return err
	}
	user.EmailVerificationToken = ""
	user.EmailVerificationExpiresAt = time.Time{}
	user.EmailVerified = true
	if err := e.users.Save(ctx, user); err != nil {
		e.warn("verification token clear failed for user %s: %v", user.ID, err)
	}

	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, auditEventEmailVerified, true, user.ID, "", nil, nil)
	return nil
}

func verificationMailBody(token string) string {
	return "Welcome! Confirm your email address to activate your account.\n\n" +
		"Verification token: " + token + "\n"
}
