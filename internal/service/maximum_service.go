package service

import (
	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
)

// MaximumService computes the session-wide maximum scores every authority is
// measured against. Maxima are structural, derived from questions and their
// options plus any score exceptions, and are the same for every authority in
// a category; per-authority exceptions are applied later against these
// tables rather than folded into them.
type MaximumService struct {
	logger *zap.Logger
}

// NewMaximumService constructs a MaximumService.
func NewMaximumService(logger *zap.Logger) *MaximumService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaximumService{logger: logger}
}

// Calculate builds the full max tables for one session's questions.
//
// A question's raw max is the highest single option score, except for
// multiple-choice questions where every option can be selected at once and
// the max is the sum. A configured score exception replaces the computed raw
// max outright. Negative questions are recorded with a raw max of 0 so
// downstream lookups never miss, and flagged so scoring can special-case
// them.
func (s *MaximumService) Calculate(questions []models.Question, scoreExceptions models.ScoreExceptionsTable) *models.SessionMaxes {
	maxes := &models.SessionMaxes{
		SectionMaxes:          map[string]map[string]int{},
		SectionWeightedMaxes:  map[string]map[string]float64{},
		QuestionMaxes:         map[string]map[string]int{},
		QuestionWeightedMaxes: map[string]map[string]float64{},
		NegativeQuestions:     map[string]map[string]bool{},
		CategoryTotals:        map[string]int{},
	}

	for _, q := range questions {
		section := q.Section
		number := q.NumberAndPart()
		if maxes.SectionMaxes[section] == nil {
			maxes.SectionMaxes[section] = map[string]int{}
			maxes.SectionWeightedMaxes[section] = map[string]float64{}
			maxes.QuestionMaxes[section] = map[string]int{}
			maxes.QuestionWeightedMaxes[section] = map[string]float64{}
			maxes.NegativeQuestions[section] = map[string]bool{}
		}

		if q.IsNegative() {
			maxes.QuestionMaxes[section][number] = 0
			maxes.QuestionWeightedMaxes[section][number] = 0
			maxes.NegativeQuestions[section][number] = true
			continue
		}

		rawMax := q.MaxOptionScore()
		if q.IsMultiSelect() {
			rawMax = q.SumOptionScores()
		}
		if exc, ok := scoreExceptions.Lookup(section, number); ok {
			rawMax = exc.MaxScore
		}

		weightedMax := models.WeightingPoints(q.Weighting)
		if q.Weighting == models.WeightingUnweighted {
			weightedMax = float64(rawMax)
		}

		maxes.QuestionMaxes[section][number] = rawMax
		maxes.QuestionWeightedMaxes[section][number] = weightedMax

		for _, category := range q.Categories {
			maxes.SectionMaxes[section][category] += rawMax
			maxes.SectionWeightedMaxes[section][category] += weightedMax
		}
	}

	for _, byCategory := range maxes.SectionMaxes {
		for category, sectionMax := range byCategory {
			maxes.CategoryTotals[category] += sectionMax
		}
	}

	return maxes
}
