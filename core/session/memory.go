package session

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore constructs an in-process Store. A positive ttl drops sessions
// that have not been upserted for longer than ttl; zero keeps them forever.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a copy of the stored session for userID.
func (m *memoryStore) Get(_ context.Context, userID string) (*Session, bool, error) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	expired := ok && m.expired(s)
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if expired {
		m.mu.Lock()
		if cur, still := m.sessions[userID]; still && m.expired(cur) {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

// Upsert stores a copy of s and stamps UpdatedAt.
func (m *memoryStore) Upsert(_ context.Context, s *Session) error {
	if s == nil {
		return ErrNilSession
	}
	cp := s.Clone()
	cp.UpdatedAt = m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[cp.UserID] = cp
	s.UpdatedAt = cp.UpdatedAt
	return nil
}

// Len reports how many sessions are held, including expired ones not yet dropped.
func (m *memoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *memoryStore) expired(s *Session) bool {
	return m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl
}
