package ordering

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/garnizeh/staffdir/internal/metrics"
	"github.com/garnizeh/staffdir/pkg/repository"
)

const (
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 64
)

// Manager keeps live reorder sessions addressable by id across requests.
// Sessions idle for longer than the TTL are dropped without committing.
type Manager struct {
	store    repository.RosterStore
	sessions *expirable.LRU[string, *Session]
}

func NewManager(store repository.RosterStore, ttl time.Duration, maxSessions int) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	onEvict := func(_ string, _ *Session) {
		metrics.ReorderSessionsActive.Dec()
	}
	return &Manager{
		store:    store,
		sessions: expirable.NewLRU[string, *Session](maxSessions, onEvict, ttl),
	}
}

// Open starts a session over a fresh load of the roster.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	s, err := Begin(ctx, uuid.NewString(), m.store)
	if err != nil {
		return nil, err
	}
	m.sessions.Add(s.ID(), s)
	metrics.ReorderSessionsActive.Inc()
	return s, nil
}

// Get returns a live session and refreshes its expiry.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	m.sessions.Add(id, s)
	return s, nil
}

// Close cancels and forgets a session.
func (m *Manager) Close(id string) error {
	s, ok := m.sessions.Peek(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.Cancel()
	m.sessions.Remove(id)
	return nil
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}
