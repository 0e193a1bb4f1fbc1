package models

// Response is one authority's recorded answer to one question at one
// marking stage. Exactly one of the answer shapes is populated: OptionScore
// for single-choice questions, MultiTotal/MultiCount for multi-select ones,
// Points for negatively marked ones. A nil OptionScore or a zero MultiCount
// means no answer was given, which is distinct from an answer scoring zero.
type Response struct {
	ID          int64  `db:"id" json:"id"`
	AuthorityID int64  `db:"authority_id" json:"authority_id"`
	QuestionID  int64  `db:"question_id" json:"question_id"`
	Stage       string `db:"stage" json:"stage"`

	OptionID    *int64 `db:"option_id" json:"option_id,omitempty"`
	OptionScore *int   `db:"option_score" json:"option_score,omitempty"`
	MultiTotal  int    `db:"-" json:"multi_total"`
	MultiCount  int    `db:"-" json:"multi_count"`
	Points      *int   `db:"points" json:"points,omitempty"`

	PublicNotes  string `db:"public_notes" json:"public_notes"`
	PrivateNotes string `db:"private_notes" json:"private_notes"`
}

// ScoreState distinguishes a missing answer from one that scored, including
// one that scored literally zero.
type ScoreState int

const (
	// ScoreMissing means no answer has been recorded yet.
	ScoreMissing ScoreState = iota
	// ScoreScored means the response produced a numeric score.
	ScoreScored
)

// QuestionScore is the three-state outcome of scoring one response.
type QuestionScore struct {
	State    ScoreState
	Value    int
	Excepted bool
}

// DuplicateGroup collects the conflicting Audit responses recorded for a
// single (question, authority) pair.
type DuplicateGroup struct {
	AuthorityName  string     `json:"authority"`
	Section        string     `json:"section"`
	QuestionNumber string     `json:"question"`
	Responses      []Response `json:"responses"`
	Exact          bool       `json:"exact"`
}
