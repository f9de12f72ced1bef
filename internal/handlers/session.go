package handlers

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"import-service/internal/grid"
	"import-service/internal/importer"
)

// GridSession ties one editable grid to its (at most one) import runner.
// Sessions are in-memory and tenant-scoped; the grid stays editable while
// a run is in flight because the runner only ever sees a snapshot.
type GridSession struct {
	ID         uuid.UUID
	TenantID   string
	EntityType string
	Grid       *grid.Grid
	Runner     *importer.Runner
	RunID      uuid.UUID
	CreatedAt  time.Time

	mu sync.Mutex
}

// Lock serializes handler access to the session's grid and runner slots.
func (s *GridSession) Lock()   { s.mu.Lock() }
func (s *GridSession) Unlock() { s.mu.Unlock() }

// SessionManager is the in-memory registry of grid sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*GridSession
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[uuid.UUID]*GridSession)}
}

// Create registers a new session for a tenant.
func (m *SessionManager) Create(tenantID, entityType string, g *grid.Grid) *GridSession {
	session := &GridSession{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EntityType: entityType,
		Grid:       g,
		CreatedAt:  time.Now(),
	}
	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
	return session
}

// Get returns a session only when it belongs to the tenant.
func (m *SessionManager) Get(tenantID string, id uuid.UUID) (*GridSession, bool) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || session.TenantID != tenantID {
		return nil, false
	}
	return session, true
}

// Delete removes a session.
func (m *SessionManager) Delete(tenantID string, id uuid.UUID) {
	m.mu.Lock()
	if session, ok := m.sessions[id]; ok && session.TenantID == tenantID {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
}
