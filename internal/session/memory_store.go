package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. It does not survive restarts and is
// meant for development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryRecord
}

type memoryRecord struct {
	state     State
	updatedAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryRecord)}
}

// Load returns the stored state or the zero State.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID].state.Clone(), nil
}

// Save replaces the stored state.
func (s *MemoryStore) Save(_ context.Context, sessionID string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = memoryRecord{state: state.Clone(), updatedAt: time.Now()}
	return nil
}

// Clear removes the stored state.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Sweep removes sessions not saved within olderThan.
func (s *MemoryStore) Sweep(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for id, rec := range s.sessions {
		if rec.updatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
