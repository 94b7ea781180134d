package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChangePassword(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "old-password")

	if err := f.engine.ChangePassword(context.Background(), "u1", "old-password", "new-password"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// Old password no longer authenticates, new one does.
	if _, err := f.engine.VerifyCredentials(context.Background(), "alice@example.com", "old-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := f.engine.VerifyCredentials(context.Background(), "alice@example.com", "new-password"); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
	if got := f.history.count("u1"); got != 1 {
		t.Fatalf("expected 1 history entry, got %d", got)
	}
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "old-password")

	if err := f.engine.ChangePassword(context.Background(), "u1", "not-the-password", "new-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePassword_Bounds(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "old-password")

	if err := f.engine.ChangePassword(context.Background(), "u1", "old-password", "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for a too-short password, got %v", err)
	}
}

func TestChangePassword_ReuseRejected(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "password-one")

	// Same as current.
	if err := f.engine.ChangePassword(context.Background(), "u1", "password-one", "password-one"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse for current password, got %v", err)
	}

	// Same as a historical one.
	if err := f.engine.ChangePassword(context.Background(), "u1", "password-one", "password-two"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if err := f.engine.ChangePassword(context.Background(), "u1", "password-two", "password-one"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse for historical password, got %v", err)
	}
	if got := f.engine.MetricsSnapshot().Counters[MetricPasswordReuseRejected]; got == 0 {
		t.Fatal("expected reuse rejections counted")
	}
}

func TestChangePassword_HistoryPruned(t *testing.T) {
	f := newTestEngine(t, func(cfg *Config) {
		cfg.Password.HistoryDepth = 2
	})
	f.seedUser(t, "u1", "alice@example.com", "password-0")

	for i, next := range []string{"password-1", "password-2", "password-3"} {
		current := []string{"password-0", "password-1", "password-2"}[i]
		if err := f.engine.ChangePassword(context.Background(), "u1", current, next); err != nil {
			t.Fatalf("ChangePassword %d failed: %v", i, err)
		}
	}

	if got := f.history.count("u1"); got != 2 {
		t.Fatalf("expected history pruned to 2, got %d", got)
	}

	// password-0 aged out of the window and may be used again.
	if err := f.engine.ChangePassword(context.Background(), "u1", "password-3", "password-0"); err != nil {
		t.Fatalf("expected aged-out password to be reusable, got %v", err)
	}
}

func TestRequestPasswordReset(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "correct-horse")

	if err := f.engine.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	u := f.users.get("u1")
	if u.PasswordResetToken == "" {
		t.Fatal("expected a reset token to be stored")
	}
	if !u.PasswordResetExpiresAt.After(time.Now()) {
		t.Fatal("expected reset token expiry in the future")
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected 1 mail sent, got %d", len(f.mailer.sent))
	}
}

func TestRequestPasswordReset_UnknownEmailSilent(t *testing.T) {
	f := newTestEngine(t)

	// Unknown and malformed addresses are indistinguishable from success.
	if err := f.engine.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected silent success for unknown email, got %v", err)
	}
	if err := f.engine.RequestPasswordReset(context.Background(), "not-an-email"); err != nil {
		t.Fatalf("expected silent success for malformed email, got %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatalf("expected no mail sent, got %d", len(f.mailer.sent))
	}
}

func TestResetPassword(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "alice@example.com", "correct-horse")
	until := time.Now().Add(time.Hour)
	u.LockedUntil = &until
	u.FailedLoginAttempts = 5
	f.users.put(u)

	if err := f.engine.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	token := f.users.get("u1").PasswordResetToken

	if err := f.engine.ResetPassword(context.Background(), token, "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// A reset also unlocks the account and clears the counter.
	got := f.users.get("u1")
	if got.LockedUntil != nil || got.FailedLoginAttempts != 0 {
		t.Fatalf("expected unlocked account, got lock=%v attempts=%d", got.LockedUntil, got.FailedLoginAttempts)
	}
	if got.PasswordResetToken != "" {
		t.Fatal("expected reset token cleared")
	}
	if _, err := f.engine.VerifyCredentials(context.Background(), "alice@example.com", "brand-new-password"); err != nil {
		t.Fatalf("expected new password to authenticate, got %v", err)
	}

	// The token is single-use.
	if err := f.engine.ResetPassword(context.Background(), token, "another-password"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid on reuse, got %v", err)
	}
}

func TestResetPassword_InvalidToken(t *testing.T) {
	f := newTestEngine(t)

	for _, token := range []string{"", "no-such-token"} {
		if err := f.engine.ResetPassword(context.Background(), token, "brand-new-password"); !errors.Is(err, ErrResetTokenInvalid) {
			t.Fatalf("token %q: expected ErrResetTokenInvalid, got %v", token, err)
		}
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "alice@example.com", "correct-horse")
	u.PasswordResetToken = "stale-token"
	u.PasswordResetExpiresAt = time.Now().Add(-time.Minute)
	f.users.put(u)

	if err := f.engine.ResetPassword(context.Background(), "stale-token", "brand-new-password"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid for expired token, got %v", err)
	}
}
