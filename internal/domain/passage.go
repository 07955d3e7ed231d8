package domain

import "time"

// Passage is a chunk of a document's extracted text together with its embedding.
type Passage struct {
	ID         string
	CourseID   string
	DocumentID string
	ChunkIndex int
	Content    string
	Embedding  []float32
	Available  bool
	CreatedAt  time.Time
}

// ScoredPassage is a search hit. Score is a similarity in [0,1].
type ScoredPassage struct {
	Passage
	Score float64
}

// PassageFilter restricts a search. Nil fields do not constrain.
type PassageFilter struct {
	Available   *bool
	DocumentIDs []string
}

// AvailableOnly is the filter used on every student-facing read.
func AvailableOnly() PassageFilter {
	available := true
	return PassageFilter{Available: &available}
}

// Matches reports whether p satisfies the filter.
func (f PassageFilter) Matches(p Passage) bool {
	if f.Available != nil && p.Available != *f.Available {
		return false
	}
	if f.DocumentIDs != nil {
		for _, id := range f.DocumentIDs {
			if id == p.DocumentID {
				return true
			}
		}
		return false
	}
	return true
}

// WithAvailability returns a copy of p with the flag set. Identity and embedding are shared.
func (p Passage) WithAvailability(available bool) Passage {
	p.Available = available
	return p
}
