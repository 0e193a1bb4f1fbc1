package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
)

// SessionRepository handles marking session lookups.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByLabel returns the session with the given label.
func (r *SessionRepository) FindByLabel(ctx context.Context, label string) (*models.MarkingSession, error) {
	const query = `SELECT id, label, active, start_date FROM marking_sessions WHERE label = $1`
	var session models.MarkingSession
	if err := r.db.GetContext(ctx, &session, query, label); err != nil {
		return nil, fmt.Errorf("find session %q: %w", label, err)
	}
	return &session, nil
}

// List returns all sessions ordered by start date.
func (r *SessionRepository) List(ctx context.Context) ([]models.MarkingSession, error) {
	const query = `SELECT id, label, active, start_date FROM marking_sessions ORDER BY start_date`
	var sessions []models.MarkingSession
	if err := r.db.SelectContext(ctx, &sessions, query); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
