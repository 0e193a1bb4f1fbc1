package models

import "strings"

// Section is a themed group of questions within a marking session.
type Section struct {
	ID        int64  `db:"id" json:"id"`
	SessionID int64  `db:"marking_session_id" json:"session_id"`
	Title     string `db:"title" json:"title"`
}

// IsCombinedAuthority reports whether the section only applies to combined
// authorities. Combined-authority sections carry a "(CA)" marker in the
// title, as in the source spreadsheets.
func (s Section) IsCombinedAuthority() bool {
	return strings.Contains(s.Title, "(CA)")
}
