package state

import (
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	initial  Stage
	now      func() time.Time
	locks    *keyedLocker
}

// Option customises a memory store.
type Option func(*memoryStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *memoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStore constructs the in-process Store. New sessions start at initial.
func NewMemoryStore(initial Stage, opts ...Option) Store {
	m := &memoryStore{
		sessions: make(map[string]*Session),
		initial:  initial,
		now:      time.Now,
		locks:    newKeyedLocker(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the session for a user, creating a fresh one at the initial stage.
func (m *memoryStore) GetOrCreate(userID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[userID]; ok {
		return session.clone(), false
	}
	session := m.newSession(userID)
	m.sessions[userID] = session
	return session.clone(), true
}

// Get returns the session for a user without creating one.
func (m *memoryStore) Get(userID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return session.clone(), true
}

// Update sets the stage and merges patch into the context, creating the session if it vanished.
func (m *memoryStore) Update(userID string, stage Stage, patch Patch) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[userID]
	if !ok {
		session = m.newSession(userID)
		m.sessions[userID] = session
	}
	session.Stage = stage
	session.Context = patch.apply(session.Context)
	session.LastActivity = m.now()
	return session.clone()
}

// Clear removes the entire session for a user.
func (m *memoryStore) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
}

// Lock serializes transitions for a single user without blocking other users.
func (m *memoryStore) Lock(userID string) func() {
	return m.locks.Lock(userID)
}

// Sweep drops sessions idle longer than idle. Users with a transition in flight are skipped.
func (m *memoryStore) Sweep(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-idle)

	m.mu.RLock()
	var expired []string
	for id, session := range m.sessions {
		if session.LastActivity.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		unlock, ok := m.locks.TryLock(id)
		if !ok {
			continue
		}
		m.mu.Lock()
		if session, ok := m.sessions[id]; ok && session.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
		m.mu.Unlock()
		unlock()
	}
	return removed
}

// Len reports the number of live sessions.
func (m *memoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *memoryStore) newSession(userID string) *Session {
	now := m.now()
	return &Session{
		UserID:       userID,
		Stage:        m.initial,
		Context:      make(map[string]string),
		CreatedAt:    now,
		LastActivity: now,
	}
}
