package models

import "time"

// Marking stages in priority order. The Audit stage is the canonical record
// used for scoring.
const (
	StageFirstMark    = "First Mark"
	StageRightOfReply = "Right of Reply"
	StageAudit        = "Audit"
)

// MarkingSession is an independent scoring scope, e.g. one year's scorecards.
// Sections, questions, authority membership and config all hang off a
// session; nothing crosses sessions.
type MarkingSession struct {
	ID        int64     `db:"id" json:"id"`
	Label     string    `db:"label" json:"label"`
	Active    bool      `db:"active" json:"active"`
	StartDate time.Time `db:"start_date" json:"start_date"`
}
