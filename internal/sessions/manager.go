// Package sessions manages server-side terminal sessions for sandboxd.
// Each session owns one PTY and the hub fanning its output out.
package sessions

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkpad-ai/sandbox-client/internal/pty"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	defaultCols = 80
	defaultRows = 24
)

// Session is one terminal attachment: a PTY plus its output hub.
type Session struct {
	ID        string
	CreatedAt time.Time
	Shell     string

	pty *pty.PTY
	hub *pty.Hub
}

// Hub returns the session's output hub.
func (s *Session) Hub() *pty.Hub {
	return s.hub
}

// Write sends input to the session's PTY.
func (s *Session) Write(data []byte) (int, error) {
	return s.hub.Write(data)
}

// Resize changes the session's terminal geometry.
func (s *Session) Resize(cols, rows uint16) error {
	return s.hub.Resize(cols, rows)
}

// Close stops the hub and terminates the PTY.
func (s *Session) Close() error {
	s.hub.Stop()
	return s.pty.Close()
}

// Manager handles terminal session lifecycle.
type Manager struct {
	shell string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager spawning the given shell. An empty shell
// means use the platform default.
func NewManager(shell string) *Manager {
	if shell == "" {
		shell = pty.DefaultShell()
	}
	return &Manager{
		shell:    shell,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new terminal session with its own PTY.
func (m *Manager) Create() (*Session, error) {
	p, err := pty.New(m.shell, defaultCols, defaultRows)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Shell:     m.shell,
		pty:       p,
		hub:       pty.NewHub(p),
	}
	go session.hub.Run()

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	return session, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes and closes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	return session.Close()
}

// List returns all session IDs.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown closes all sessions. Used on recreation: replacing the sandbox
// invalidates every session it hosted.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
