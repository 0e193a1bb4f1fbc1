package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	appErrors "github.com/mysociety/ceuk-marking-sub000/pkg/errors"
)

func TestScoreSingleChoice(t *testing.T) {
	scorer := NewResponseScorer(zap.NewNop())
	authority := models.Authority{Name: "Borsetshire Council"}
	question := models.Question{Section: "Transport", Number: 1, Type: models.QuestionTypeYesNo}

	t.Run("nil response is missing", func(t *testing.T) {
		score, err := scorer.Score(authority, question, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, models.ScoreMissing, score.State)
	})

	t.Run("unanswered response is missing", func(t *testing.T) {
		score, err := scorer.Score(authority, question, &models.Response{}, nil)
		require.NoError(t, err)
		assert.Equal(t, models.ScoreMissing, score.State)
	})

	t.Run("zero score is scored, not missing", func(t *testing.T) {
		score, err := scorer.Score(authority, question, &models.Response{OptionScore: intPtr(0)}, nil)
		require.NoError(t, err)
		assert.Equal(t, models.ScoreScored, score.State)
		assert.Equal(t, 0, score.Value)
	})

	t.Run("selected option score", func(t *testing.T) {
		score, err := scorer.Score(authority, question, &models.Response{OptionScore: intPtr(2)}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, score.Value)
	})
}

func TestScoreMultiSelect(t *testing.T) {
	scorer := NewResponseScorer(zap.NewNop())
	authority := models.Authority{Name: "Borsetshire Council"}
	question := models.Question{Section: "Transport", Number: 2, Type: models.QuestionTypeMultipleChoice}

	score, err := scorer.Score(authority, question, &models.Response{MultiTotal: 7, MultiCount: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScoreScored, score.State)
	assert.Equal(t, 7, score.Value)

	score, err = scorer.Score(authority, question, &models.Response{}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScoreMissing, score.State)
}

func TestScoreNegative(t *testing.T) {
	scorer := NewResponseScorer(zap.NewNop())
	authority := models.Authority{Name: "Borsetshire Council"}
	question := models.Question{Section: "Transport", Number: 11, Type: models.QuestionTypeNegative}

	score, err := scorer.Score(authority, question, &models.Response{Points: intPtr(-2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, -2, score.Value)

	// A marked negative response with no points cannot be scored.
	_, err = scorer.Score(authority, question, &models.Response{}, nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsDataInconsistency(err))
}

func TestScoreException(t *testing.T) {
	scorer := NewResponseScorer(zap.NewNop())
	authority := models.Authority{Name: "Borsetshire Council"}
	question := models.Question{Section: "Waste", Number: 5, Type: models.QuestionTypeTiered}
	scoreExceptions := models.ScoreExceptionsTable{
		"Waste": {"5": {MaxScore: 1, PointsForMax: 3}},
	}

	// At or above the threshold contributes the capped max.
	score, err := scorer.Score(authority, question, &models.Response{OptionScore: intPtr(3)}, scoreExceptions)
	require.NoError(t, err)
	assert.Equal(t, 1, score.Value)

	// Below the threshold contributes nothing.
	score, err = scorer.Score(authority, question, &models.Response{OptionScore: intPtr(2)}, scoreExceptions)
	require.NoError(t, err)
	assert.Equal(t, models.ScoreScored, score.State)
	assert.Equal(t, 0, score.Value)
}

func TestScoreExceptionNegativeQuestion(t *testing.T) {
	scorer := NewResponseScorer(zap.NewNop())
	authority := models.Authority{Name: "Borsetshire Council"}
	question := models.Question{Section: "Waste", Number: 11, Type: models.QuestionTypeNegative}
	scoreExceptions := models.ScoreExceptionsTable{
		"Waste": {"11": {MaxScore: 1, PointsForMax: 3}},
	}

	// The exception replaces the override points on negatively marked
	// questions the same as any other: thresholded, then capped.
	score, err := scorer.Score(authority, question, &models.Response{Points: intPtr(3)}, scoreExceptions)
	require.NoError(t, err)
	assert.Equal(t, 1, score.Value)

	score, err = scorer.Score(authority, question, &models.Response{Points: intPtr(2)}, scoreExceptions)
	require.NoError(t, err)
	assert.Equal(t, models.ScoreScored, score.State)
	assert.Equal(t, 0, score.Value)
}
