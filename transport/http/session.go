package http

import (
	"sync"
	"time"
)

// SessionManager tracks MCP sessions issued by initialize.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// Session represents an MCP session
type Session struct {
	ID              string
	ProtocolVersion string
	Created         time.Time
	LastSeen        time.Time
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// CreateSession registers a session with its negotiated protocol version.
func (sm *SessionManager) CreateSession(sessionID, protocolVersion string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	sm.sessions[sessionID] = &Session{
		ID:              sessionID,
		ProtocolVersion: protocolVersion,
		Created:         now,
		LastSeen:        now,
	}
}

// TouchSession refreshes LastSeen and reports whether the session exists.
func (sm *SessionManager) TouchSession(sessionID string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if exists {
		session.LastSeen = time.Now()
	}
	return exists
}

// GetSession returns a copy of the session.
func (sm *SessionManager) GetSession(sessionID string) (Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return Session{}, false
	}
	return *session, true
}

// RemoveSession deletes a session and reports whether it existed.
func (sm *SessionManager) RemoveSession(sessionID string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	_, exists := sm.sessions[sessionID]
	delete(sm.sessions, sessionID)
	return exists
}

// CleanupSessions removes sessions idle for longer than timeout and returns
// how many were removed.
func (sm *SessionManager) CleanupSessions(timeout time.Duration) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	removed := 0
	now := time.Now()
	for sessionID, session := range sm.sessions {
		if now.Sub(session.LastSeen) > timeout {
			delete(sm.sessions, sessionID)
			removed++
		}
	}
	return removed
}

func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
