package models

import "strings"

// Session config table names as stored in session_configs.
const (
	ConfigExceptions      = "exceptions"
	ConfigScoreExceptions = "score_exceptions"
	ConfigWeightings      = "score_weightings"
)

// ExceptionRule removes a set of questions from one section's applicable set
// for the authorities it matches. Exactly one matching shape is populated:
// category plus country, authority type code, or authority name. Rules are
// evaluated in that order and all matches are unioned.
type ExceptionRule struct {
	Section       string   `json:"section"`
	Category      string   `json:"category,omitempty"`
	Country       string   `json:"country,omitempty"`
	AuthorityType string   `json:"authority_type,omitempty"`
	AuthorityName string   `json:"authority_name,omitempty"`
	Questions     []string `json:"questions"`
}

// Matches reports whether the rule applies to the authority for the given
// section.
func (r ExceptionRule) Matches(section string, authority Authority) bool {
	if r.Section != section {
		return false
	}
	switch {
	case r.Category != "":
		return r.Category == authority.Category &&
			strings.EqualFold(r.Country, authority.Country)
	case r.AuthorityType != "":
		return r.AuthorityType == authority.Type
	case r.AuthorityName != "":
		return r.AuthorityName == authority.Name
	}
	return false
}

// ExceptionsTable holds the resolved exception rules for one session.
type ExceptionsTable struct {
	Rules []ExceptionRule
}

// Add appends a rule to the table.
func (t *ExceptionsTable) Add(rule ExceptionRule) {
	t.Rules = append(t.Rules, rule)
}

// QuestionsFor returns the union of excepted question numbers for the
// authority in the given section, trying category+country, then authority
// type, then authority name.
func (t *ExceptionsTable) QuestionsFor(section string, authority Authority) []string {
	var questions []string
	seen := map[string]bool{}
	for _, r := range t.Rules {
		if !r.Matches(section, authority) {
			continue
		}
		for _, q := range r.Questions {
			if !seen[q] {
				seen[q] = true
				questions = append(questions, q)
			}
		}
	}
	return questions
}

// IsExcepted reports whether a single question number is excepted for the
// authority.
func (t *ExceptionsTable) IsExcepted(section, questionNumber string, authority Authority) bool {
	for _, q := range t.QuestionsFor(section, authority) {
		if q == questionNumber {
			return true
		}
	}
	return false
}

// Clone returns a copy whose rule slice can be extended without mutating the
// original. Used when layering derived rules on top of a cached table.
func (t *ExceptionsTable) Clone() *ExceptionsTable {
	clone := &ExceptionsTable{Rules: make([]ExceptionRule, len(t.Rules))}
	copy(clone.Rules, t.Rules)
	return clone
}

// ScoreException caps a question's contributed score: a computed raw score
// at or above PointsForMax contributes MaxScore, anything below contributes
// zero. MaxScore also replaces the question's computed raw max.
type ScoreException struct {
	MaxScore     int `json:"max_score"`
	PointsForMax int `json:"points_for_max"`
}

// ScoreExceptionsTable maps section title then question number to its score
// exception.
type ScoreExceptionsTable map[string]map[string]ScoreException

// Lookup returns the score exception for a (section, question) pair if one
// is configured.
func (t ScoreExceptionsTable) Lookup(section, questionNumber string) (ScoreException, bool) {
	if t == nil {
		return ScoreException{}, false
	}
	byQuestion, ok := t[section]
	if !ok {
		return ScoreException{}, false
	}
	exc, ok := byQuestion[questionNumber]
	return exc, ok
}

// WeightingsTable maps section title then authority category to the factor
// (0-1) applied when rolling the section's weighted percentage into the
// council total.
type WeightingsTable map[string]map[string]float64

// Factor returns the configured weighting factor. The second return is
// false when no entry exists, which callers report as a configuration
// warning and treat as weight 0.
func (t WeightingsTable) Factor(section, category string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	byCategory, ok := t[section]
	if !ok {
		return 0, false
	}
	factor, ok := byCategory[category]
	return factor, ok
}
