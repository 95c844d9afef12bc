package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rv64ima/emulator/service"
	"github.com/rv64ima/emulator/vm"
)

const defaultSessionRAMSize = 16 * 1024 * 1024

var (
	// ErrSessionNotFound is returned when a session is not found
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionAlreadyExists is returned when trying to create a session with an existing ID
	ErrSessionAlreadyExists = errors.New("session already exists")
)

// Session represents an active emulator session
type Session struct {
	ID        string
	Service   *service.DebuggerService
	CreatedAt time.Time
	TempDir   string // Temporary directory for filesystem operations (cleaned up on destroy)
}

// SessionManager manages multiple emulator sessions
type SessionManager struct {
	sessions    map[string]*Session
	broadcaster *Broadcaster
	mu          sync.RWMutex
}

// NewSessionManager creates a new session manager
func NewSessionManager(broadcaster *Broadcaster) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		broadcaster: broadcaster,
	}
}

// CreateSession creates a new session with a unique ID
func (sm *SessionManager) CreateSession(opts SessionCreateRequest) (*Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	ramSize := opts.RAMSize
	if ramSize == 0 {
		ramSize = defaultSessionRAMSize
	}

	machine := vm.NewMachine(ramSize)

	// A session with no explicit FSRoot gets its own temp directory,
	// which is wiped on DestroySession rather than exposing the host
	// filesystem to the guest.
	var tempDir string
	if opts.FSRoot == "" {
		tempDir, err = os.MkdirTemp("", "rv64ima-session-*")
		if err != nil {
			return nil, err
		}
	}

	if sm.broadcaster != nil {
		machine.OutputWriter = NewEventWriter(sm.broadcaster, sessionID, "stdout")
		debugLog("Session %s: EventWriter set up for stdout broadcasting", sessionID)
	} else {
		debugLog("Session %s: WARNING - no broadcaster available for output", sessionID)
	}

	debugService := service.NewDebuggerService(machine, ramSize)

	session := &Session{
		ID:        sessionID,
		Service:   debugService,
		CreatedAt: time.Now(),
		TempDir:   tempDir,
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[sessionID]; exists {
		return nil, ErrSessionAlreadyExists
	}

	sm.sessions[sessionID] = session
	return session, nil
}

// FSRootFor returns the filesystem root a session's LoadProgram call
// should use: the session's own temp directory unless the caller
// supplies an explicit override at load time.
func (s *Session) FSRootFor(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return s.TempDir
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(sessionID string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// DestroySession removes a session by ID
func (sm *SessionManager) DestroySession(sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	if session.TempDir != "" {
		os.RemoveAll(session.TempDir)
	}

	delete(sm.sessions, sessionID)
	return nil
}

// ListSessions returns a list of all session IDs
func (sm *SessionManager) ListSessions() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.sessions)
}

// generateSessionID generates a unique session ID
func generateSessionID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
