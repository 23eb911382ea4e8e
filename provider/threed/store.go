package threed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mstgnz/gopos/provider"
)

// ErrSessionNotFound is returned when a session is unknown or expired.
var ErrSessionNotFound = errors.New("3D session not found")

// SessionStore persists sessions between the redirect and the callback.
//
// Claim marks the session's callback as taken. It succeeds exactly once per
// session; later calls fail with provider.ErrPrecondition, so only one
// callback can reach the bank.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Claim(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// ClaimTaken is the error a store returns when id was already claimed.
func ClaimTaken(id string) error {
	return provider.Precondition("3D session %s callback already claimed", id)
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
	claimed   bool
}

// MemoryStore keeps sessions in process memory. Suitable for a single
// instance and for tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a store whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.History = append([]State(nil), s.History...)
	prev, _ := m.live(s.ID)
	m.sessions[s.ID] = memoryEntry{session: cp, expiresAt: m.now().Add(m.ttl), claimed: prev.claimed}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := e.session
	cp.History = append([]State(nil), e.session.History...)
	return &cp, nil
}

func (m *MemoryStore) Claim(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(id)
	if !ok {
		return ErrSessionNotFound
	}
	if e.claimed {
		return ClaimTaken(id)
	}
	e.claimed = true
	m.sessions[id] = e
	return nil
}

// live returns the unexpired entry for id. Callers hold mu.
func (m *MemoryStore) live(id string) (memoryEntry, bool) {
	e, ok := m.sessions[id]
	if !ok {
		return memoryEntry{}, false
	}
	if m.ttl > 0 && m.now().After(e.expiresAt) {
		delete(m.sessions, id)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
