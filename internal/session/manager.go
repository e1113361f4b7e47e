package session

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager owns the live sessions. Each session holds its own copy of the
// data; the manager only guards the index.
type Manager struct {
	mu       sync.RWMutex
	opts     Options
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions share opts
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	return &Manager{opts: opts, sessions: make(map[string]*Session)}
}

// Create starts an empty session for username
func (m *Manager) Create(username string) *Session {
	s := newSession(username, m.opts)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.opts.Logger.WithFields(logrus.Fields{"session": s.ID, "user": username}).Info("session created")
	return s
}

// Get returns a session. Sessions are private to the user that created them.
func (m *Manager) Get(id, username string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || s.Username != username {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Delete drops a session
func (m *Manager) Delete(id, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.Username != username {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// List returns the sessions of username, oldest first
func (m *Manager) List(username string) []Info {
	m.mu.RLock()
	owned := make([]*Session, 0)
	for _, s := range m.sessions {
		if s.Username == username {
			owned = append(owned, s)
		}
	}
	m.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})
	out := make([]Info, len(owned))
	for i, s := range owned {
		out[i] = s.Info()
	}
	return out
}

// Len is the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
