package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store persists session state between requests.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Put(ctx context.Context, s *State) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	state   *State
	expires time.Time
}

// MemoryStore keeps sessions in process. Entries expire TTL after their
// last access. States are copied in and out, so changes need a Put like
// with any other store.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := m.now()
	if m.ttl > 0 && now.After(e.expires) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}
	e.expires = now.Add(m.ttl)
	m.entries[id] = e
	cp := *e.state
	return &cp, nil
}

func (m *MemoryStore) Put(_ context.Context, s *State) error {
	if s == nil || s.ID == "" {
		return errors.New("session: state without id")
	}
	cp := *s
	m.mu.Lock()
	m.entries[s.ID] = memoryEntry{state: &cp, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired sessions and returns how many remain.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ttl > 0 {
		now := m.now()
		for id, e := range m.entries {
			if now.After(e.expires) {
				delete(m.entries, id)
			}
		}
	}
	return len(m.entries)
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
