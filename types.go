package authcore

import (
	"context"
	"time"
)

// User is the account record consumed by the Engine. The storage backend owns
// persistence; authcore only reads and mutates the fields below through
// [UserRepository].
type User struct {
	ID           string
	Email        string
	PasswordHash string

	// TOTPSecret is the base32-encoded shared secret. Empty means the second
	// factor has not been provisioned.
	TOTPSecret string

	EmailVerified              bool
	EmailVerificationToken     string
	EmailVerificationExpiresAt time.Time

	PasswordResetToken     string
	PasswordResetExpiresAt time.Time

	FailedLoginAttempts int
	LockedUntil         *time.Time

	CreatedAt time.Time
}

// Session is the durable record of an issued refresh token. Only the SHA-256
// hash of the token is stored; lookups hash the presented token first.
// A session is active iff RevokedAt is nil and the expiry has not passed.
type Session struct {
	ID               string
	UserID           string
	DeviceID         string
	RefreshTokenHash string
	AccessTokenHash  string
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	LastActivityAt   time.Time
}

// Active reports whether the session can still mint access tokens.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Device is a per-user trust record for a recognized client. At most one
// device per user may be primary; the Engine enforces that policy, not the
// repository. The verification token is single-use and time-boxed.
type Device struct {
	ID                    string
	UserID                string
	Fingerprint           string
	Name                  string
	Type                  string
	IsPrimary             bool
	IsVerified            bool
	VerificationToken     string
	VerificationExpiresAt time.Time
	LastUsedAt            time.Time
	CreatedAt             time.Time
	RevokedAt             *time.Time
}

// PasswordHistoryEntry is one retained password hash, append-only, pruned to
// the configured retention count per user.
type PasswordHistoryEntry struct {
	ID           string
	UserID       string
	PasswordHash string
	CreatedAt    time.Time
}

// UserRepository is the account persistence contract the host application
// must implement. Lookups return (nil, nil) when no row matches; errors are
// reserved for backend failures.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByPasswordResetToken(ctx context.Context, token string) (*User, error)
	FindByEmailVerificationToken(ctx context.Context, token string) (*User, error)
	Save(ctx context.Context, user *User) error
	UpdateTOTPSecret(ctx context.Context, userID, secret string) error
	UpdatePasswordResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	ResetFailedLoginAttempts(ctx context.Context, userID string) error
	UnlockAccount(ctx context.Context, userID string) error
	MarkEmailAsVerified(ctx context.Context, userID string) error
}

// SessionRepository persists long-lived session records. Revocation methods
// are idempotent: revoking an already-revoked session is a no-op.
type SessionRepository interface {
	Save(ctx context.Context, session *Session) error
	FindByRefreshTokenHash(ctx context.Context, hash string) (*Session, error)
	FindByUserID(ctx context.Context, userID string) ([]Session, error)
	FindByDeviceID(ctx context.Context, deviceID string) ([]Session, error)
	RevokeSession(ctx context.Context, sessionID string) error
	RevokeAllUserSessions(ctx context.Context, userID string) error
	RevokeDeviceSessions(ctx context.Context, deviceID string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
	UpdateLastActivity(ctx context.Context, sessionID string) error
}

// DeviceRepository persists device trust records.
type DeviceRepository interface {
	FindByID(ctx context.Context, id string) (*Device, error)
	FindByUserID(ctx context.Context, userID string) ([]Device, error)
	FindByFingerprint(ctx context.Context, userID, fingerprint string) (*Device, error)
	FindPrimaryDevice(ctx context.Context, userID string) (*Device, error)
	FindVerifiedDevices(ctx context.Context, userID string) ([]Device, error)
	RevokeDevice(ctx context.Context, deviceID string) error
	Save(ctx context.Context, device *Device) error
}

// CascadeRevoker is an optional upgrade interface for DeviceRepository
// implementations that can revoke a device and all of its sessions inside a
// single storage transaction. The Engine prefers it over the compensated
// two-step path when the repository implements it.
type CascadeRevoker interface {
	RevokeDeviceCascade(ctx context.Context, userID, deviceID string) error
}

// PasswordHistoryRepository retains recent password hashes for reuse checks.
type PasswordHistoryRepository interface {
	Save(ctx context.Context, entry *PasswordHistoryEntry) error
	GetRecentPasswords(ctx context.Context, userID string, limit int) ([]PasswordHistoryEntry, error)
	ClearOldPasswords(ctx context.Context, userID string, keepCount int) error
}

// Mailer delivers verification and reset messages. Delivery is best-effort
// from the Engine's point of view; failures are logged, not surfaced.
type Mailer interface {
	Send(to, subject, body string) error
}

// PendingLoginResult is returned by [Engine.VerifyCredentials]. The session
// token identifies the password-verified-but-not-yet-MFA-verified attempt and
// must be presented to [Engine.VerifyTOTP] within ExpiresIn seconds.
type PendingLoginResult struct {
	SessionToken string
	ExpiresIn    int
}

// TokenPair is returned by [Engine.VerifyTOTP] and [Engine.Refresh].
type TokenPair struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID string
	Email  string
}

// DeviceInfo is the display-safe projection returned by [Engine.ListDevices].
// Verification tokens and fingerprints never leave the core.
type DeviceInfo struct {
	ID         string
	Name       string
	Type       string
	IsPrimary  bool
	IsVerified bool
	LastUsedAt time.Time
	CreatedAt  time.Time
}
