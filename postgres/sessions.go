package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/skydrive-labs/authcore"
)

// SessionRepository implements authcore.SessionRepository on Postgres.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, device_id, refresh_token_hash, access_token_hash,
ip_address, user_agent, created_at, expires_at, revoked_at, last_activity_at`

func (r *SessionRepository) Save(ctx context.Context, s *authcore.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			refresh_token_hash = EXCLUDED.refresh_token_hash,
			access_token_hash = EXCLUDED.access_token_hash,
			expires_at = EXCLUDED.expires_at,
			revoked_at = EXCLUDED.revoked_at,
			last_activity_at = EXCLUDED.last_activity_at`,
		s.ID, s.UserID, s.DeviceID, s.RefreshTokenHash, s.AccessTokenHash,
		s.IPAddress, s.UserAgent, s.CreatedAt, s.ExpiresAt,
		nullTimePtr(s.RevokedAt), s.LastActivityAt,
	)
	return err
}

func (r *SessionRepository) FindByRefreshTokenHash(ctx context.Context, hash string) (*authcore.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = $1`, hash)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *SessionRepository) FindByUserID(ctx context.Context, userID string) ([]authcore.Session, error) {
	return r.findMany(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *SessionRepository) FindByDeviceID(ctx context.Context, deviceID string) ([]authcore.Session, error) {
	return r.findMany(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE device_id = $1 ORDER BY created_at DESC`, deviceID)
}

func (r *SessionRepository) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, sessionID)
	return err
}

func (r *SessionRepository) RevokeAllUserSessions(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	return err
}

func (r *SessionRepository) RevokeDeviceSessions(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = now() WHERE device_id = $1 AND revoked_at IS NULL`, deviceID)
	return err
}

func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SessionRepository) UpdateLastActivity(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = now() WHERE id = $1`, sessionID)
	return err
}

func (r *SessionRepository) findMany(ctx context.Context, query string, arg any) ([]authcore.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authcore.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*authcore.Session, error) {
	var (
		s       authcore.Session
		revoked sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.DeviceID, &s.RefreshTokenHash, &s.AccessTokenHash,
		&s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt,
		&revoked, &s.LastActivityAt,
	)
	if err != nil {
		return nil, err
	}
	s.RevokedAt = timePtr(revoked)
	return &s, nil
}
