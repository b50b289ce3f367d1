package roster

import (
	"context"
	"slices"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Store]. It preserves insertion
// order and is suitable for single-game use and testing.
type MemStore struct {
	mu      sync.RWMutex
	members []Member
	byID    map[string]int
}

// NewMemStore returns an initialised [MemStore], pre-populated with the
// given members in order.
func NewMemStore(members ...Member) *MemStore {
	s := &MemStore{byID: make(map[string]int)}
	for _, m := range members {
		s.members = append(s.members, m)
		s.byID[m.ID] = len(s.members) - 1
	}
	return s
}

// Add implements [Store.Add].
func (s *MemStore) Add(_ context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[m.ID]; exists {
		return ErrDuplicateID
	}
	s.members = append(s.members, m)
	s.byID[m.ID] = len(s.members) - 1
	return nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return Member{}, ErrNotFound
	}
	return s.members[i], nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.members), nil
}

// Remove implements [Store.Remove].
func (s *MemStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return nil
	}
	s.members = slices.Delete(s.members, i, i+1)
	delete(s.byID, id)
	// Reindex the tail; removals are rare (party deaths).
	for j := i; j < len(s.members); j++ {
		s.byID[s.members[j].ID] = j
	}
	return nil
}
