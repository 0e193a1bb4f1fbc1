package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
)

// AuthorityRepository handles authority lookups.
type AuthorityRepository struct {
	db *sqlx.DB
}

// NewAuthorityRepository creates a new authority repository.
func NewAuthorityRepository(db *sqlx.DB) *AuthorityRepository {
	return &AuthorityRepository{db: db}
}

// ListMarkable returns the session's authorities that are in scope for
// scoring, with their category description joined in. Authorities flagged
// do_not_mark are excluded here so they can never reach the aggregator.
func (r *AuthorityRepository) ListMarkable(ctx context.Context, sessionID int64) ([]models.Authority, error) {
	const query = `SELECT a.id, a.unique_id, a.name, a.type, a.country, a.do_not_mark, qg.description AS category
        FROM authorities a
        JOIN question_groups qg ON qg.id = a.question_group_id
        JOIN authority_sessions s ON s.authority_id = a.id
        WHERE s.marking_session_id = $1 AND a.do_not_mark = FALSE
        ORDER BY a.name`
	var authorities []models.Authority
	if err := r.db.SelectContext(ctx, &authorities, query, sessionID); err != nil {
		return nil, fmt.Errorf("list markable authorities: %w", err)
	}
	return authorities, nil
}

// FindByName returns one authority by name within a session.
func (r *AuthorityRepository) FindByName(ctx context.Context, sessionID int64, name string) (*models.Authority, error) {
	const query = `SELECT a.id, a.unique_id, a.name, a.type, a.country, a.do_not_mark, qg.description AS category
        FROM authorities a
        JOIN question_groups qg ON qg.id = a.question_group_id
        JOIN authority_sessions s ON s.authority_id = a.id
        WHERE s.marking_session_id = $1 AND a.name = $2`
	var authority models.Authority
	if err := r.db.GetContext(ctx, &authority, query, sessionID, name); err != nil {
		return nil, fmt.Errorf("find authority %q: %w", name, err)
	}
	return &authority, nil
}
