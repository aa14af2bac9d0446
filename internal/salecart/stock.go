package salecart

import (
	"strings"

	"medeasy/pos/domain"
)

// Stock is a point-in-time snapshot of the medicine list used for ceiling
// pre-checks. The engine never refreshes or mutates it; the server remains
// the final authority at submission.
type Stock struct {
	byID  map[int64]domain.Medicine
	order []int64
}

// NewStock indexes an already fetched medicine list.
func NewStock(medicines []domain.Medicine) Stock {
	s := Stock{byID: make(map[int64]domain.Medicine, len(medicines)), order: make([]int64, 0, len(medicines))}
	for _, m := range medicines {
		if _, dup := s.byID[m.ID]; !dup {
			s.order = append(s.order, m.ID)
		}
		s.byID[m.ID] = m
	}
	return s
}

// Lookup returns the medicine with id.
func (s Stock) Lookup(id int64) (domain.Medicine, bool) {
	m, ok := s.byID[id]
	return m, ok
}

// Search returns medicines whose name contains query, case-insensitively,
// in snapshot order. An empty query returns everything.
func (s Stock) Search(query string) []domain.Medicine {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Medicine, 0, len(s.order))
	for _, id := range s.order {
		m := s.byID[id]
		if q == "" || strings.Contains(strings.ToLower(m.Name), q) {
			out = append(out, m)
		}
	}
	return out
}

// Len reports the number of medicines in the snapshot.
func (s Stock) Len() int { return len(s.order) }
