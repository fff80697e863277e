package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/orderbot/internal/domain"
)

// MemorySessionStore is an in-memory SessionStore. Sessions are copied on
// the way in and out so callers never share drafts with the store.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session // identity → session
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domain.Session)}
}

func (s *MemorySessionStore) Get(_ context.Context, identity string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[identity]
	if !ok {
		return nil, nil
	}
	sess.Draft = sess.Draft.Clone()
	return &sess, nil
}

func (s *MemorySessionStore) Put(_ context.Context, sess *domain.Session) error {
	cp := *sess
	cp.Draft = sess.Draft.Clone()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Identity] = cp
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, identity)
	return nil
}

// Identities returns the identities with a live session, sorted.
func (s *MemorySessionStore) Identities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
