package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/skydrive-labs/authcore"
)

// UserRepository implements authcore.UserRepository on Postgres.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, totp_secret, email_verified,
email_verification_token, email_verification_expires_at,
password_reset_token, password_reset_expires_at,
failed_login_attempts, locked_until, created_at`

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) FindByPasswordResetToken(ctx context.Context, token string) (*authcore.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE password_reset_token = $1`, token)
}

func (r *UserRepository) FindByEmailVerificationToken(ctx context.Context, token string) (*authcore.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email_verification_token = $1`, token)
}

// Save upserts the full user row keyed by ID.
func (r *UserRepository) Save(ctx context.Context, u *authcore.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			totp_secret = EXCLUDED.totp_secret,
			email_verified = EXCLUDED.email_verified,
			email_verification_token = EXCLUDED.email_verification_token,
			email_verification_expires_at = EXCLUDED.email_verification_expires_at,
			password_reset_token = EXCLUDED.password_reset_token,
			password_reset_expires_at = EXCLUDED.password_reset_expires_at,
			failed_login_attempts = EXCLUDED.failed_login_attempts,
			locked_until = EXCLUDED.locked_until`,
		u.ID, u.Email, u.PasswordHash, u.TOTPSecret, u.EmailVerified,
		u.EmailVerificationToken, nullTimeOf(u.EmailVerificationExpiresAt),
		u.PasswordResetToken, nullTimeOf(u.PasswordResetExpiresAt),
		u.FailedLoginAttempts, nullTimePtr(u.LockedUntil), u.CreatedAt,
	)
	return err
}

func (r *UserRepository) UpdateTOTPSecret(ctx context.Context, userID, secret string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = $2 WHERE id = $1`, userID, secret)
	return err
}

func (r *UserRepository) UpdatePasswordResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_reset_token = $2, password_reset_expires_at = $3 WHERE id = $1`,
		userID, token, nullTimeOf(expiresAt))
	return err
}

func (r *UserRepository) ResetFailedLoginAttempts(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts = 0 WHERE id = $1`, userID)
	return err
}

func (r *UserRepository) UnlockAccount(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET locked_until = NULL, failed_login_attempts = 0 WHERE id = $1`, userID)
	return err
}

func (r *UserRepository) MarkEmailAsVerified(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET email_verified = TRUE,
			email_verification_token = '',
			email_verification_expires_at = NULL
		WHERE id = $1`, userID)
	return err
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*authcore.User, error) {
	var (
		u                   authcore.User
		verificationExpires sql.NullTime
		resetExpires        sql.NullTime
		lockedUntil         sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.TOTPSecret, &u.EmailVerified,
		&u.EmailVerificationToken, &verificationExpires,
		&u.PasswordResetToken, &resetExpires,
		&u.FailedLoginAttempts, &lockedUntil, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.EmailVerificationExpiresAt = timeOrZero(verificationExpires)
	u.PasswordResetExpiresAt = timeOrZero(resetExpires)
	u.LockedUntil = timePtr(lockedUntil)
	return &u, nil
}
