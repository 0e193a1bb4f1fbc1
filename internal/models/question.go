package models

import "fmt"

// Question types. Yes/no, select-one and tiered questions score the single
// selected option; multiple-choice questions score the sum of the selected
// options; negative questions are scored from an explicit points override on
// the response and never contribute to maxima.
const (
	QuestionTypeYesNo          = "yes_no"
	QuestionTypeSelectOne      = "select_one"
	QuestionTypeTiered         = "tiered"
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeNegative       = "negative"
)

// Weighting tiers. Low/medium/high map to fixed weighted-max points;
// unweighted questions pass their raw max through unchanged.
const (
	WeightingLow        = "low"
	WeightingMedium     = "medium"
	WeightingHigh       = "high"
	WeightingUnweighted = "unweighted"
)

// Option is one possible answer to a question.
type Option struct {
	ID          int64  `db:"id" json:"id"`
	QuestionID  int64  `db:"question_id" json:"question_id"`
	Score       int    `db:"score" json:"score"`
	Ordering    int    `db:"ordering" json:"ordering"`
	Description string `db:"description" json:"description"`
}

// Question belongs to one section and applies to a set of authority
// categories. Number plus NumberPart ("8" + "b") identify it within its
// section.
type Question struct {
	ID         int64  `db:"id" json:"id"`
	SectionID  int64  `db:"section_id" json:"section_id"`
	Section    string `db:"section" json:"section"`
	Number     int    `db:"number" json:"number"`
	NumberPart string `db:"number_part" json:"number_part"`
	Type       string `db:"question_type" json:"question_type"`
	Weighting  string `db:"weighting" json:"weighting"`

	Categories []string `db:"-" json:"categories"`
	Options    []Option `db:"-" json:"options"`
}

// NumberAndPart renders the question identifier used throughout config and
// reporting, e.g. "8b".
func (q Question) NumberAndPart() string {
	return fmt.Sprintf("%d%s", q.Number, q.NumberPart)
}

// IsNegative reports whether the question is negatively marked.
func (q Question) IsNegative() bool {
	return q.Type == QuestionTypeNegative
}

// IsMultiSelect reports whether the answer is a set of options rather than a
// single one.
func (q Question) IsMultiSelect() bool {
	return q.Type == QuestionTypeMultipleChoice
}

// AppliesTo reports whether the question applies to the given authority
// category.
func (q Question) AppliesTo(category string) bool {
	for _, c := range q.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// MaxOptionScore returns the highest score among the question's options.
// Zero options is a data setup problem but must not blow up scoring, so it
// yields 0.
func (q Question) MaxOptionScore() int {
	max := 0
	for _, o := range q.Options {
		if o.Score > max {
			max = o.Score
		}
	}
	return max
}

// SumOptionScores returns the sum of all option scores.
func (q Question) SumOptionScores() int {
	total := 0
	for _, o := range q.Options {
		total += o.Score
	}
	return total
}

// WeightingPoints converts the weighting tier into its fixed point value.
// Unweighted questions have no fixed value; callers pass the question's own
// raw max through instead.
func WeightingPoints(weighting string) float64 {
	switch weighting {
	case WeightingMedium:
		return 2
	case WeightingHigh:
		return 3
	default:
		return 1
	}
}
