package service

import (
	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	appErrors "github.com/mysociety/ceuk-marking-sub000/pkg/errors"
)

// ResponseScorer turns a single recorded response into its raw score. It is
// careful to keep "no answer" distinct from "answered and scored zero": a
// missing answer is ScoreMissing, never a zero.
type ResponseScorer struct {
	logger *zap.Logger
}

// NewResponseScorer constructs a ResponseScorer.
func NewResponseScorer(logger *zap.Logger) *ResponseScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseScorer{logger: logger}
}

// Score computes the raw score for one response against its question and any
// configured score exception for that question.
//
// Single-choice questions score the selected option. Multi-select questions
// score the sum of the selected options. Negative questions take their score
// from the explicit points override on the response; a marked negative
// response with no points recorded cannot be scored correctly and is a data
// inconsistency. A score exception then replaces the computed score,
// negative questions included: at or above the threshold it becomes the
// capped max, below it becomes zero.
func (s *ResponseScorer) Score(authority models.Authority, question models.Question, resp *models.Response, scoreExceptions models.ScoreExceptionsTable) (models.QuestionScore, error) {
	number := question.NumberAndPart()

	if resp == nil {
		return models.QuestionScore{State: models.ScoreMissing}, nil
	}

	var value int
	switch {
	case question.IsNegative():
		if resp.Points == nil {
			return models.QuestionScore{}, appErrors.Inconsistency(
				authority.Name, question.Section, number,
				"negatively marked response has no points recorded")
		}
		value = *resp.Points
	case question.IsMultiSelect():
		if resp.MultiCount == 0 {
			return models.QuestionScore{State: models.ScoreMissing}, nil
		}
		value = resp.MultiTotal
	default:
		if resp.OptionScore == nil {
			return models.QuestionScore{State: models.ScoreMissing}, nil
		}
		value = *resp.OptionScore
	}

	if exc, ok := scoreExceptions.Lookup(question.Section, number); ok {
		if value >= exc.PointsForMax {
			value = exc.MaxScore
		} else {
			value = 0
		}
	}

	return models.QuestionScore{State: models.ScoreScored, Value: value}, nil
}
