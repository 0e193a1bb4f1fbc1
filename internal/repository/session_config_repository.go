package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SessionConfigRepository reads the per-session JSON config rows (question
// exceptions, score exceptions, section weightings).
type SessionConfigRepository struct {
	db *sqlx.DB
}

// NewSessionConfigRepository creates a new session config repository.
func NewSessionConfigRepository(db *sqlx.DB) *SessionConfigRepository {
	return &SessionConfigRepository{db: db}
}

// Get returns the raw JSON value of the named config table for a session.
// When no row exists the wrapped error matches sql.ErrNoRows and callers
// default to an empty table.
func (r *SessionConfigRepository) Get(ctx context.Context, sessionID int64, name string) ([]byte, error) {
	const query = `SELECT json_value FROM session_configs WHERE marking_session_id = $1 AND name = $2`
	var raw []byte
	if err := r.db.GetContext(ctx, &raw, query, sessionID, name); err != nil {
		return nil, fmt.Errorf("get session config %q: %w", name, err)
	}
	return raw, nil
}
