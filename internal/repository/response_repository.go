package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
)

// ResponseRepository handles response loading. The scoring engine treats
// responses as a frozen snapshot, so everything is fetched with one bulk
// read per session rather than per authority.
type ResponseRepository struct {
	db *sqlx.DB
}

// NewResponseRepository creates a new response repository.
func NewResponseRepository(db *sqlx.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// ListByStage returns all of a session's responses at the given marking
// stage, with the selected option's score and the summed multi-option
// scores attached.
func (r *ResponseRepository) ListByStage(ctx context.Context, sessionID int64, stage string) ([]models.Response, error) {
	const responseQuery = `SELECT resp.id, resp.authority_id, resp.question_id, resp.stage, resp.option_id, resp.points,
            COALESCE(resp.public_notes, '') AS public_notes, COALESCE(resp.private_notes, '') AS private_notes,
            o.score AS option_score
        FROM responses resp
        JOIN questions q ON q.id = resp.question_id
        JOIN sections s ON s.id = q.section_id
        LEFT JOIN options o ON o.id = resp.option_id
        WHERE s.marking_session_id = $1 AND resp.stage = $2
        ORDER BY resp.authority_id, resp.question_id`
	rows, err := r.db.QueryxContext(ctx, responseQuery, sessionID, stage)
	if err != nil {
		return nil, fmt.Errorf("list %s responses: %w", stage, err)
	}
	defer rows.Close()

	var responses []models.Response
	index := make(map[int64]int)
	for rows.Next() {
		var resp models.Response
		var optionScore sql.NullInt64
		if err := rows.Scan(&resp.ID, &resp.AuthorityID, &resp.QuestionID, &resp.Stage, &resp.OptionID,
			&resp.Points, &resp.PublicNotes, &resp.PrivateNotes, &optionScore); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if optionScore.Valid {
			score := int(optionScore.Int64)
			resp.OptionScore = &score
		}
		index[resp.ID] = len(responses)
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}

	const multiQuery = `SELECT rmo.response_id, SUM(o.score) AS total, COUNT(*) AS selected
        FROM response_multi_options rmo
        JOIN options o ON o.id = rmo.option_id
        JOIN responses resp ON resp.id = rmo.response_id
        JOIN questions q ON q.id = resp.question_id
        JOIN sections s ON s.id = q.section_id
        WHERE s.marking_session_id = $1 AND resp.stage = $2
        GROUP BY rmo.response_id`
	multiRows, err := r.db.QueryxContext(ctx, multiQuery, sessionID, stage)
	if err != nil {
		return nil, fmt.Errorf("list multi option scores: %w", err)
	}
	defer multiRows.Close()
	for multiRows.Next() {
		var responseID int64
		var total, selected int
		if err := multiRows.Scan(&responseID, &total, &selected); err != nil {
			return nil, fmt.Errorf("scan multi option score: %w", err)
		}
		if i, ok := index[responseID]; ok {
			responses[i].MultiTotal = total
			responses[i].MultiCount = selected
		}
	}
	if err := multiRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate multi option scores: %w", err)
	}

	return responses, nil
}

// AuthoritiesSelectingOption returns the names of authorities whose Audit
// response to the identified question selects the option with the given
// description. Used to derive response-dependent exceptions.
func (r *ResponseRepository) AuthoritiesSelectingOption(ctx context.Context, sessionID int64, sectionTitle, questionNumber, optionDescription string) ([]string, error) {
	const query = `SELECT a.name
        FROM responses resp
        JOIN authorities a ON a.id = resp.authority_id
        JOIN questions q ON q.id = resp.question_id
        JOIN sections s ON s.id = q.section_id
        JOIN options o ON o.id = resp.option_id
        WHERE s.marking_session_id = $1 AND s.title = $2
          AND CONCAT(q.number, COALESCE(q.number_part, '')) = $3
          AND resp.stage = $4 AND o.description = $5
        ORDER BY a.name`
	var names []string
	if err := r.db.SelectContext(ctx, &names, query, sessionID, sectionTitle, questionNumber, models.StageAudit, optionDescription); err != nil {
		return nil, fmt.Errorf("list authorities selecting option: %w", err)
	}
	return names, nil
}

// ListDuplicates returns the Audit-stage responses recorded more than once
// for the same (question, authority) pair, grouped for the duplicate
// checker.
func (r *ResponseRepository) ListDuplicates(ctx context.Context, sessionID int64) ([]models.DuplicateGroup, error) {
	const groupQuery = `SELECT resp.authority_id, a.name, resp.question_id, s.title,
            CONCAT(q.number, COALESCE(q.number_part, '')) AS question_number
        FROM responses resp
        JOIN authorities a ON a.id = resp.authority_id
        JOIN questions q ON q.id = resp.question_id
        JOIN sections s ON s.id = q.section_id
        WHERE s.marking_session_id = $1 AND resp.stage = $2
        GROUP BY resp.authority_id, a.name, resp.question_id, s.title, q.number, q.number_part
        HAVING COUNT(*) > 1
        ORDER BY a.name, s.title`
	rows, err := r.db.QueryxContext(ctx, groupQuery, sessionID, models.StageAudit)
	if err != nil {
		return nil, fmt.Errorf("list duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []models.DuplicateGroup
	type key struct {
		authorityID int64
		questionID  int64
	}
	var keys []key
	for rows.Next() {
		var g models.DuplicateGroup
		var k key
		if err := rows.Scan(&k.authorityID, &g.AuthorityName, &k.questionID, &g.Section, &g.QuestionNumber); err != nil {
			return nil, fmt.Errorf("scan duplicate group: %w", err)
		}
		groups = append(groups, g)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate groups: %w", err)
	}

	const memberQuery = `SELECT resp.id, resp.authority_id, resp.question_id, resp.stage, resp.option_id, resp.points,
            COALESCE(resp.public_notes, '') AS public_notes, COALESCE(resp.private_notes, '') AS private_notes
        FROM responses resp
        WHERE resp.authority_id = $1 AND resp.question_id = $2 AND resp.stage = $3
        ORDER BY resp.id`
	for i, k := range keys {
		var members []models.Response
		if err := r.db.SelectContext(ctx, &members, memberQuery, k.authorityID, k.questionID, models.StageAudit); err != nil {
			return nil, fmt.Errorf("list duplicate responses: %w", err)
		}
		groups[i].Responses = members
	}

	return groups, nil
}
