package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a Postgres connection pool using the given DSN. Caller must call
// Close when done.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Schema is the DDL for every table the repositories touch. Statements are
// idempotent so EnsureSchema can run on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id                            TEXT PRIMARY KEY,
    email                         TEXT NOT NULL UNIQUE,
    password_hash                 TEXT NOT NULL,
    totp_secret                   TEXT NOT NULL DEFAULT '',
    email_verified                BOOLEAN NOT NULL DEFAULT FALSE,
    email_verification_token      TEXT NOT NULL DEFAULT '',
    email_verification_expires_at TIMESTAMPTZ,
    password_reset_token          TEXT NOT NULL DEFAULT '',
    password_reset_expires_at     TIMESTAMPTZ,
    failed_login_attempts         INTEGER NOT NULL DEFAULT 0,
    locked_until                  TIMESTAMPTZ,
    created_at                    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
    id                 TEXT PRIMARY KEY,
    user_id            TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    device_id          TEXT NOT NULL DEFAULT '',
    refresh_token_hash TEXT NOT NULL,
    access_token_hash  TEXT NOT NULL DEFAULT '',
    ip_address         TEXT NOT NULL DEFAULT '',
    user_agent         TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL,
    expires_at         TIMESTAMPTZ NOT NULL,
    revoked_at         TIMESTAMPTZ,
    last_activity_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_refresh_hash_idx ON sessions (refresh_token_hash);
CREATE INDEX IF NOT EXISTS sessions_user_idx ON sessions (user_id);
CREATE INDEX IF NOT EXISTS sessions_device_idx ON sessions (device_id);

CREATE TABLE IF NOT EXISTS devices (
    id                      TEXT PRIMARY KEY,
    user_id                 TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    fingerprint             TEXT NOT NULL,
    name                    TEXT NOT NULL,
    type                    TEXT NOT NULL DEFAULT '',
    is_primary              BOOLEAN NOT NULL DEFAULT FALSE,
    is_verified             BOOLEAN NOT NULL DEFAULT FALSE,
    verification_token      TEXT NOT NULL DEFAULT '',
    verification_expires_at TIMESTAMPTZ,
    last_used_at            TIMESTAMPTZ NOT NULL,
    created_at              TIMESTAMPTZ NOT NULL,
    revoked_at              TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS devices_user_idx ON devices (user_id);

CREATE TABLE IF NOT EXISTS password_history (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS password_history_user_idx ON password_history (user_id, created_at DESC);
`

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

func timeOrZero(t sql.NullTime) time.Time {
	if t.Valid {
		return t.Time
	}
	return time.Time{}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time
	return &out
}

func nullTimeOf(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
