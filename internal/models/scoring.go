package models

// SessionMaxes holds the maximum achievable scores for one session, before
// any per-authority exceptions are applied.
type SessionMaxes struct {
	// SectionMaxes maps section title then authority category to the raw
	// maximum achievable score.
	SectionMaxes map[string]map[string]int `json:"section_maxes"`
	// SectionWeightedMaxes is the weighted equivalent of SectionMaxes.
	SectionWeightedMaxes map[string]map[string]float64 `json:"section_weighted_maxes"`
	// QuestionMaxes maps section title then question number to the raw
	// maximum for that question. Negative questions are present with a max
	// of 0 so lookups never fail.
	QuestionMaxes map[string]map[string]int `json:"question_maxes"`
	// QuestionWeightedMaxes maps section title then question number to the
	// question's weighted-max contribution.
	QuestionWeightedMaxes map[string]map[string]float64 `json:"question_weighted_maxes"`
	// NegativeQuestions marks the question numbers excluded from normal max
	// accounting, per section.
	NegativeQuestions map[string]map[string]bool `json:"negative_questions"`
	// CategoryTotals maps authority category to the sum of its section raw
	// maxes.
	CategoryTotals map[string]int `json:"category_totals"`
}

// SectionScore is one authority's outcome for one section. Raw is the plain
// sum of scores; RawWeighted is the accumulated per-question weighted points
// before normalisation; Weighted has the section weighting factor applied
// and is rounded to two decimal places; UnweightedPercentage is the weighted
// score over the weighted max prior to the factor.
type SectionScore struct {
	Raw                  int     `json:"raw"`
	RawPercent           float64 `json:"raw_percent"`
	RawWeighted          float64 `json:"raw_weighted"`
	Weighted             float64 `json:"weighted"`
	UnweightedPercentage float64 `json:"unweighted_percentage"`
}

// AuthorityScore is one authority's complete scorecard.
type AuthorityScore struct {
	Name          string                  `json:"name"`
	Category      string                  `json:"category"`
	Country       string                  `json:"country"`
	Sections      map[string]SectionScore `json:"sections"`
	RawTotal      int                     `json:"raw_total"`
	PercentTotal  float64                 `json:"percent_total"`
	WeightedTotal float64                 `json:"weighted_total"`
}

// ScoringResult is the full output of one aggregation run: the per-council
// scorecards plus the supporting max tables consumed by reporting and
// export collaborators.
type ScoringResult struct {
	SessionLabel string                    `json:"session"`
	Authorities  map[string]AuthorityScore `json:"authorities"`
	Maxes        *SessionMaxes             `json:"maxes"`
}

// SessionData is the frozen snapshot of one session's inputs loaded at the
// start of an aggregation run. Nothing in it is mutated during scoring.
type SessionData struct {
	Session     MarkingSession
	Sections    []Section
	Questions   []Question
	Authorities []Authority
	Responses   []Response
}

// QuestionsByID indexes the snapshot's questions.
func (d *SessionData) QuestionsByID() map[int64]*Question {
	byID := make(map[int64]*Question, len(d.Questions))
	for i := range d.Questions {
		byID[d.Questions[i].ID] = &d.Questions[i]
	}
	return byID
}

// SectionTitles returns the session's section titles, split into the
// combined-authority set and the rest.
func (d *SessionData) SectionTitles() (standard, combined []string) {
	for _, s := range d.Sections {
		if s.IsCombinedAuthority() {
			combined = append(combined, s.Title)
		} else {
			standard = append(standard, s.Title)
		}
	}
	return standard, combined
}
