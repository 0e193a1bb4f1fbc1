package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
)

// SectionRepository handles section lookups.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository creates a new section repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// ListBySession returns the session's sections in title order.
func (r *SectionRepository) ListBySession(ctx context.Context, sessionID int64) ([]models.Section, error) {
	const query = `SELECT id, marking_session_id, title FROM sections WHERE marking_session_id = $1 ORDER BY title`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, sessionID); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}
