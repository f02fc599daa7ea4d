package cart

import "sync"

// Store holds the last-known cart state for one page session. Only the Client
// that owns it writes to it; everyone else reads snapshots.
type Store struct {
	mu      sync.RWMutex
	summary Summary
	detail  *Detail
}

// NewStore returns a store holding the zero summary.
func NewStore() *Store {
	return &Store{}
}

// Summary returns a copy of the current summary.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// Detail returns a copy of the last loaded detail, if any.
func (s *Store) Detail() (Detail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.detail == nil {
		return Detail{}, false
	}
	return cloneDetail(*s.detail), true
}

func (s *Store) replace(summary Summary) {
	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()
}

func (s *Store) replaceDetail(detail Detail) {
	d := cloneDetail(detail)
	s.mu.Lock()
	s.detail = &d
	s.mu.Unlock()
}

func cloneDetail(d Detail) Detail {
	out := d
	out.Jobs = append([]Job(nil), d.Jobs...)
	return out
}
