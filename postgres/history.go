package postgres

import (
	"context"
	"database/sql"

	"github.com/skydrive-labs/authcore"
)

// PasswordHistoryRepository implements authcore.PasswordHistoryRepository on
// Postgres.
type PasswordHistoryRepository struct {
	db *sql.DB
}

func NewPasswordHistoryRepository(db *sql.DB) *PasswordHistoryRepository {
	return &PasswordHistoryRepository{db: db}
}

func (r *PasswordHistoryRepository) Save(ctx context.Context, entry *authcore.PasswordHistoryEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO password_history (id, user_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.UserID, entry.PasswordHash, entry.CreatedAt)
	return err
}

func (r *PasswordHistoryRepository) GetRecentPasswords(ctx context.Context, userID string, limit int) ([]authcore.PasswordHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, password_hash, created_at FROM password_history
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authcore.PasswordHistoryEntry
	for rows.Next() {
		var e authcore.PasswordHistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.PasswordHash, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearOldPasswords deletes everything but the keepCount most recent entries
// for the user.
func (r *PasswordHistoryRepository) ClearOldPasswords(ctx context.Context, userID string, keepCount int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM password_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM password_history
			WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
		)`, userID, keepCount)
	return err
}
