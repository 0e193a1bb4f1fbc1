package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
)

// QuestionRepository handles question, option and category-membership
// lookups.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository creates a new question repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// ListBySession returns all of a session's questions with their options and
// applicable authority categories attached. Three queries, stitched in
// memory, so the scoring path never goes back to the database per question.
func (r *QuestionRepository) ListBySession(ctx context.Context, sessionID int64) ([]models.Question, error) {
	const questionQuery = `SELECT q.id, q.section_id, s.title AS section, q.number, COALESCE(q.number_part, '') AS number_part,
            q.question_type, q.weighting
        FROM questions q
        JOIN sections s ON s.id = q.section_id
        WHERE s.marking_session_id = $1
        ORDER BY s.title, q.number, q.number_part`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, questionQuery, sessionID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	index := make(map[int64]int, len(questions))
	for i := range questions {
		index[questions[i].ID] = i
	}

	const categoryQuery = `SELECT qc.question_id, qg.description
        FROM question_categories qc
        JOIN question_groups qg ON qg.id = qc.question_group_id
        JOIN questions q ON q.id = qc.question_id
        JOIN sections s ON s.id = q.section_id
        WHERE s.marking_session_id = $1`
	catRows, err := r.db.QueryxContext(ctx, categoryQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list question categories: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var questionID int64
		var category string
		if err := catRows.Scan(&questionID, &category); err != nil {
			return nil, fmt.Errorf("scan question category: %w", err)
		}
		if i, ok := index[questionID]; ok {
			questions[i].Categories = append(questions[i].Categories, category)
		}
	}
	if err := catRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question categories: %w", err)
	}

	const optionQuery = `SELECT o.id, o.question_id, o.score, o.ordering, o.description
        FROM options o
        JOIN questions q ON q.id = o.question_id
        JOIN sections s ON s.id = q.section_id
        WHERE s.marking_session_id = $1
        ORDER BY o.question_id, o.ordering`
	var options []models.Option
	if err := r.db.SelectContext(ctx, &options, optionQuery, sessionID); err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	for _, option := range options {
		if i, ok := index[option.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, option)
		}
	}

	return questions, nil
}
