package models

import "time"

// Session is an ephemeral, derived grouping of digests that were created close
// together in time and are semantically coherent. Sessions are computed on
// demand and never mutated in place; a changed input window produces a new one.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	MemberIDs []string  `json:"member_ids"`
	Coherence float64   `json:"coherence"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Category  string    `json:"category,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	Centroid  []float32 `json:"-"`
}

// Contains reports whether id is a member of the session.
func (s *Session) Contains(id string) bool {
	for _, m := range s.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}
