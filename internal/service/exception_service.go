package service

import (
	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
)

// ExceptionService applies per-authority exception rules to the session max
// tables, producing the effective maxima each authority is scored against.
type ExceptionService struct {
	logger *zap.Logger
}

// NewExceptionService constructs an ExceptionService.
func NewExceptionService(logger *zap.Logger) *ExceptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExceptionService{logger: logger}
}

// EffectiveMaxima returns the raw and weighted section maxima for one
// authority after removing the contribution of every excepted question.
// Exception rules naming a question number the section doesn't have are a
// config problem, not a scoring one: they are logged and skipped so a typo
// in config can never reduce a max it shouldn't.
func (s *ExceptionService) EffectiveMaxima(maxes *models.SessionMaxes, exceptions *models.ExceptionsTable, section string, authority models.Authority) (int, float64) {
	rawMax := maxes.SectionMaxes[section][authority.Category]
	weightedMax := maxes.SectionWeightedMaxes[section][authority.Category]

	for _, number := range exceptions.QuestionsFor(section, authority) {
		qMax, ok := maxes.QuestionMaxes[section][number]
		if !ok {
			s.logger.Warn("exception references unknown question",
				zap.String("section", section),
				zap.String("question", number),
				zap.String("authority", authority.Name))
			continue
		}
		rawMax -= qMax
		weightedMax -= maxes.QuestionWeightedMaxes[section][number]
	}
	return rawMax, weightedMax
}

// IsExcepted reports whether the question is excepted for the authority in
// the given section.
func (s *ExceptionService) IsExcepted(exceptions *models.ExceptionsTable, section, questionNumber string, authority models.Authority) bool {
	return exceptions.IsExcepted(section, questionNumber, authority)
}
