package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func deviceCtx(fingerprint string) context.Context {
	return WithDeviceFingerprint(context.Background(), fingerprint)
}

func TestRegisterDevice(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "correct-horse")

	info, token, err := f.engine.RegisterDevice(deviceCtx("fp-laptop"), "u1", "Work Laptop", "desktop")
	if err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}
	if info.ID == "" || token == "" {
		t.Fatal("expected device id and verification token")
	}
	if !info.IsPrimary {
		t.Fatal("expected the first device to be primary")
	}
	if info.IsVerified {
		t.Fatal("expected a fresh device to start unverified")
	}

	// A second device is not primary.
	second, _, err := f.engine.RegisterDevice(deviceCtx("fp-phone"), "u1", "Phone", "mobile")
	if err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}
	if second.IsPrimary {
		t.Fatal("expected second device not to be primary")
	}
}

func TestRegisterDevice_MissingFingerprint(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "correct-horse")

	if _, _, err := f.engine.RegisterDevice(context.Background(), "u1", "Laptop", "desktop"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without fingerprint, got %v", err)
	}
	if _, _, err := f.engine.RegisterDevice(deviceCtx("fp"), "u1", "", "desktop"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without name, got %v", err)
	}
}

func TestRegisterDevice_KnownFingerprint(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "correct-horse")

	first, _, err := f.engine.RegisterDevice(deviceCtx("fp-laptop"), "u1", "Laptop", "desktop")
	if err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}

	// Same fingerprint again returns the existing record, no new token.
	again, token, err := f.engine.RegisterDevice(deviceCtx("fp-laptop"), "u1", "Laptop", "desktop")
	if err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected existing device %q, got %q", first.ID, again.ID)
	}
	if token != "" {
		t.Fatal("expected no verification token for a known device")
	}
}

func TestVerifyDevice(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "correct-horse")

	info, token, err := f.engine.RegisterDevice(deviceCtx("fp-laptop"), "u1", "Laptop", "desktop")
	if err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}

	if err := f.engine.VerifyDevice(context.Background(), "u1", token); err != nil {
		t.Fatalf("VerifyDevice failed: %v", err)
	}

	devices, err := f.engine.ListDevices(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 1 || devices[0].ID != info.ID || !devices[0].IsVerified {
		t.Fatalf("expected one verified device, got %+v", devices)
	}

	// The token is single-use.
	if err := f.engine.VerifyDevice(context.Background(), "u1", token); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid on reuse, got %v", err)
	}
}

func TestVerifyDevice_ExpiredToken(t *testing.T) {
	f := newTestEngine(t, func(cfg *Config) {
		cfg.Device.VerificationTTL = -time.Minute
	})
	f.seedUser(t, "u1", "alice@example.com", "correct-horse")

	_, token, err := f.engine.RegisterDevice(deviceCtx("fp-laptop"), "u1", "Laptop", "desktop")
	if err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}
	if err := f.engine.VerifyDevice(context.Background(), "u1", token); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid for expired token, got %v", err)
	}
}

func TestRevokeDevice(t *testing.T) {
	f := newTestEngine(t)
	_, secret := f.seedUserWithTOTP(t, "u1", "alice@example.com", "correct-horse")

	info, _, err := f.engine.RegisterDevice(deviceCtx("fp-laptop"), "u1", "Laptop", "desktop")
	if err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}

	// A login from the same fingerprint binds its session to the device.
	pending, err := f.engine.VerifyCredentials(deviceCtx("fp-laptop"), "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("VerifyCredentials failed: %v", err)
	}
	if _, err := f.engine.VerifyTOTP(deviceCtx("fp-laptop"), pending.SessionToken, totpCodeNow(t, secret)); err != nil {
		t.Fatalf("VerifyTOTP failed: %v", err)
	}

	if err := f.engine.RevokeDevice(context.Background(), "u1", info.ID); err != nil {
		t.Fatalf("RevokeDevice failed: %v", err)
	}

	// No active sessions remain on the device, and it is hidden from listings.
	sessions, _ := f.sessions.FindByDeviceID(context.Background(), info.ID)
	now := time.Now()
	for _, s := range sessions {
		if s.Active(now) {
			t.Fatalf("expected no active device sessions, found %q", s.ID)
		}
	}
	devices, err := f.engine.ListDevices(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("expected revoked device hidden, got %+v", devices)
	}

	// Revoking again is a no-op, not an error.
	if err := f.engine.RevokeDevice(context.Background(), "u1", info.ID); err != nil {
		t.Fatalf("expected second revoke to be a no-op, got %v", err)
	}
}

func TestRevokeDevice_Unknown(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "correct-horse")

	if err := f.engine.RevokeDevice(context.Background(), "u1", "no-such-device"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestRevokeDevice_WrongOwner(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "alice@example.com", "correct-horse")
	f.seedUser(t, "u2", "bob@example.com", "correct-horse")

	info, _, err := f.engine.RegisterDevice(deviceCtx("fp-laptop"), "u1", "Laptop", "desktop")
	if err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}

	if err := f.engine.RevokeDevice(context.Background(), "u2", info.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
