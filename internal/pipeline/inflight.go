package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// InflightSet tracks candidate ids currently held by an active run, so
// two overlapping runs can never consume the same item. Reservation is
// all or nothing: if any id in a batch is already held, none are taken.
type InflightSet struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

// NewInflightSet creates an empty InflightSet.
func NewInflightSet() *InflightSet {
	return &InflightSet{ids: make(map[uuid.UUID]struct{})}
}

// TryAdd reserves every id in the batch, or none of them. It returns
// false when at least one id is already reserved.
func (s *InflightSet) TryAdd(ids []uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, held := s.ids[id]; held {
			return false
		}
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return true
}

// Remove releases the given ids. Unreserved ids are ignored.
func (s *InflightSet) Remove(ids []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.ids, id)
	}
}

// Contains reports whether the id is currently reserved.
func (s *InflightSet) Contains(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, held := s.ids[id]
	return held
}
