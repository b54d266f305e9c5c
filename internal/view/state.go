package view

import (
	"sync"
	"time"

	"github.com/spectra/engine/internal/store"
)

// State is the explorer's mutable view state. Changing filters, category,
// blacklist or page size resets to page 1; Derive clamps the page when the
// result shrinks.
type State struct {
	mu sync.Mutex
	q  Query
}

// NewState creates a State from display settings.
func NewState(display store.DisplaySettings) *State {
	return &State{q: Query{
		Category:   CategoryAll,
		ShowClosed: display.ShowClosed,
		SortField:  display.SortField,
		Ascending:  display.SortAscending,
		Page:       1,
		PageSize:   display.PageSize,
	}}
}

// Query returns a copy of the current query.
func (s *State) Query() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q
}

// SetFilters replaces the filter set and returns to page 1.
func (s *State) SetFilters(f Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.Filters = f
	s.q.Page = 1
}

// SetShowClosed toggles closed records and returns to page 1.
func (s *State) SetShowClosed(show bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.ShowClosed = show
	s.q.Page = 1
}

// SetPageSize changes the page size and returns to page 1.
func (s *State) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.q.PageSize = n
	}
	s.q.Page = 1
}

// SetBlacklist replaces the blacklist and returns to page 1.
func (s *State) SetBlacklist(b store.BlacklistSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.Blacklist = b
	s.q.Page = 1
}

// SetCategory selects a category and its member ids and returns to page 1.
func (s *State) SetCategory(category string, members []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.Category = category
	s.q.Members = nil
	if members != nil {
		s.q.Members = make(map[string]struct{}, len(members))
		for _, id := range members {
			s.q.Members[id] = struct{}{}
		}
	}
	s.q.Page = 1
}

// SetSort changes the sort order. The page is kept.
func (s *State) SetSort(field string, ascending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.SortField = field
	s.q.Ascending = ascending
}

// Next advances one page; Derive clamps past the end.
func (s *State) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.Page++
}

// Prev goes back one page.
func (s *State) Prev() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q.Page > 1 {
		s.q.Page--
	}
}

// Apply derives the current page from records and stores the clamped page
// number back.
func Apply[T any](s *State, records []T, fieldsOf FieldsFunc[T], now time.Time) Page[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Derive(records, fieldsOf, s.q, now)
	s.q.Page = p.Page
	return p
}
