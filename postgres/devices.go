package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/skydrive-labs/authcore"
)

// DeviceRepository implements authcore.DeviceRepository on Postgres. It also
// implements authcore.CascadeRevoker, so device revocation and the session
// cascade commit atomically.
type DeviceRepository struct {
	db *sql.DB
}

func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `id, user_id, fingerprint, name, type, is_primary, is_verified,
verification_token, verification_expires_at, last_used_at, created_at, revoked_at`

func (r *DeviceRepository) FindByID(ctx context.Context, id string) (*authcore.Device, error) {
	return r.findOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
}

func (r *DeviceRepository) FindByUserID(ctx context.Context, userID string) ([]authcore.Device, error) {
	return r.findMany(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (r *DeviceRepository) FindByFingerprint(ctx context.Context, userID, fingerprint string) (*authcore.Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM devices
		WHERE user_id = $1 AND fingerprint = $2 AND revoked_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, userID, fingerprint)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (r *DeviceRepository) FindPrimaryDevice(ctx context.Context, userID string) (*authcore.Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM devices
		WHERE user_id = $1 AND is_primary AND revoked_at IS NULL LIMIT 1`, userID)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (r *DeviceRepository) FindVerifiedDevices(ctx context.Context, userID string) ([]authcore.Device, error) {
	return r.findMany(ctx, `
		SELECT `+deviceColumns+` FROM devices
		WHERE user_id = $1 AND is_verified AND revoked_at IS NULL
		ORDER BY created_at`, userID)
}

func (r *DeviceRepository) RevokeDevice(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, deviceID)
	return err
}

// RevokeDeviceCascade revokes the device and every session bound to it in one
// transaction. Either both land or neither does.
func (r *DeviceRepository) RevokeDeviceCascade(ctx context.Context, userID, deviceID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = now() WHERE device_id = $1 AND revoked_at IS NULL`,
		deviceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE devices SET revoked_at = now() WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		deviceID, userID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *DeviceRepository) Save(ctx context.Context, d *authcore.Device) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			is_primary = EXCLUDED.is_primary,
			is_verified = EXCLUDED.is_verified,
			verification_token = EXCLUDED.verification_token,
			verification_expires_at = EXCLUDED.verification_expires_at,
			last_used_at = EXCLUDED.last_used_at,
			revoked_at = EXCLUDED.revoked_at`,
		d.ID, d.UserID, d.Fingerprint, d.Name, d.Type, d.IsPrimary, d.IsVerified,
		d.VerificationToken, nullTimeOf(d.VerificationExpiresAt),
		d.LastUsedAt, d.CreatedAt, nullTimePtr(d.RevokedAt),
	)
	return err
}

func (r *DeviceRepository) findOne(ctx context.Context, query string, arg any) (*authcore.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (r *DeviceRepository) findMany(ctx context.Context, query string, arg any) ([]authcore.Device, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authcore.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDevice(row rowScanner) (*authcore.Device, error) {
	var (
		d                   authcore.Device
		verificationExpires sql.NullTime
		revoked             sql.NullTime
	)
	err := row.Scan(
		&d.ID, &d.UserID, &d.Fingerprint, &d.Name, &d.Type, &d.IsPrimary, &d.IsVerified,
		&d.VerificationToken, &verificationExpires, &d.LastUsedAt, &d.CreatedAt, &revoked,
	)
	if err != nil {
		return nil, err
	}
	d.VerificationExpiresAt = timeOrZero(verificationExpires)
	d.RevokedAt = timePtr(revoked)
	return &d, nil
}
