package partition

import "sync"

// DefaultLimit is the number of files placed under one numbered sub-prefix.
const DefaultLimit = 100

// Subdivision hands out numbered sub-prefixes in contiguous runs of Limit files.
// Prefixes start at 1 and only ever increase.
type Subdivision struct {
	mutex   sync.Mutex
	prefix  int
	counter int
	limit   int
}

func NewSubdivision(limit int) *Subdivision {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Subdivision{prefix: 1, limit: limit}
}

// Assign returns the sub-prefix for the next file.
func (s *Subdivision) Assign() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	prefix := s.prefix
	s.counter++
	if s.counter >= s.limit {
		s.prefix++
		s.counter = 0
	}
	return prefix
}

// State returns the current prefix and counter.
func (s *Subdivision) State() (prefix, counter int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.prefix, s.counter
}
