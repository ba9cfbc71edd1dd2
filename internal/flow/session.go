package flow

import (
	"context"
	"sort"
	"sync"
)

// SessionStore keeps one session per user. Get returns nil and no error
// when the user has no session.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Set(ctx context.Context, s *Session) error
	Clear(ctx context.Context, userID int64) error
}

// SessionLister is implemented by stores that can enumerate sessions, so
// pending timeouts can be re-armed after a restart.
type SessionLister interface {
	List(ctx context.Context) ([]*Session, error)
}

// MemoryStore is a process-local SessionStore.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

var (
	_ SessionStore  = (*MemoryStore)(nil)
	_ SessionLister = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*Session)}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	return s.clone(), nil
}

func (m *MemoryStore) Set(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s.clone()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// List returns every session ordered by user id.
func (m *MemoryStore) List(_ context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
