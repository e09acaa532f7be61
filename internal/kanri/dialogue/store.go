package dialogue

import (
	"context"
	"sync"
)

// Store persists per-user State between messages. Load returns a fresh
// NewState for a user it has never seen. Implementations need not serialize
// access per user; Machine does that.
type Store interface {
	Load(ctx context.Context, userID string) (*State, error)
	Save(ctx context.Context, userID string, s *State) error
}

// MemoryStore keeps state in a process-wide map. Entries are never evicted;
// they are small and bounded by the number of active users.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, userID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[userID]
	if !ok {
		return NewState(), nil
	}
	return s.Clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, userID string, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = s.Clone()
	return nil
}

// Len returns the number of users with stored state.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}
