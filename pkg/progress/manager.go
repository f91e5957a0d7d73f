package progress

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Manager owns all live progress sessions
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create starts tracking a new session with a generated id
func (m *Manager) Create(url string) *Session {
	sess := NewSession(uuid.New().String(), url)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return sess
}

// Get returns the session by id, or nil when unknown
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Cleanup removes a session. Removing an unknown or already-removed session
// is a no-op.
func (m *Manager) Cleanup(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		log.Printf("[DEBUG] progress session %s cleaned up", id)
	}
}

// Active returns summaries of all live sessions keyed by session id
func (m *Manager) Active() map[string]Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Summary, len(m.sessions))
	for id, sess := range m.sessions {
		out[id] = sess.Summary()
	}
	return out
}
