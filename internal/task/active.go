package task

import (
	"sort"
	"sync"
)

// ActiveSet tracks the task ids a single poll loop is working on. The loop
// processes tasks sequentially, so it never holds more than one id; other
// goroutines may read it for diagnostics.
type ActiveSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewActiveSet returns an empty set.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{ids: make(map[string]struct{})}
}

func (s *ActiveSet) Add(id string) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

func (s *ActiveSet) Remove(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

func (s *ActiveSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Snapshot returns the current ids in sorted order.
func (s *ActiveSet) Snapshot() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
