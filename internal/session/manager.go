package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/listenupapp/listenup-reader/internal/config"
	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/progress"
	"github.com/listenupapp/listenup-reader/internal/transport"
)

// Manager owns the open sessions, at most one per book.
type Manager struct {
	store  progress.RemoteStore
	logger *slog.Logger
	engine config.EngineConfig
	sync   config.SyncConfig

	audioRoot string

	// newPlayer overrides the audio backend per session; tests inject fakes.
	newPlayer func(bookID string) transport.Player

	mu       sync.RWMutex
	sessions map[string]*Session
	byBook   map[string]string
}

// NewManager creates an empty session manager.
func NewManager(cfg *config.Config, store progress.RemoteStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		logger:    logger.With("component", "session-manager"),
		engine:    cfg.Engine,
		sync:      cfg.Sync,
		audioRoot: cfg.AudioCachePath(),
		sessions:  make(map[string]*Session),
		byBook:    make(map[string]string),
	}
}

// Open returns the book's session, creating it on first open. Opening an
// already open book returns the existing session; resume reconciliation runs
// only on creation.
func (m *Manager) Open(ctx context.Context, bookID, bookPath string) (*Session, error) {
	m.mu.RLock()
	if sid, ok := m.byBook[bookID]; ok {
		s := m.sessions[sid]
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	cfg := Config{
		BookID:    bookID,
		BookPath:  bookPath,
		Store:     m.store,
		Logger:    m.logger,
		Engine:    m.engine,
		Sync:      m.sync,
		AudioRoot: m.audioRoot,
	}
	if m.newPlayer != nil {
		cfg.Player = m.newPlayer(bookID)
	}
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if sid, ok := m.byBook[bookID]; ok {
		// Lost the race; keep the winner.
		existing := m.sessions[sid]
		m.mu.Unlock()
		s.Close()
		return existing, nil
	}
	m.sessions[s.ID()] = s
	m.byBook[bookID] = s.ID()
	m.mu.Unlock()

	if _, adopted, err := s.Reconcile(ctx); err != nil {
		m.logger.Warn("resume reconciliation failed", "book_id", bookID, "error", err)
	} else if adopted {
		m.logger.Info("resumed from remote position", "book_id", bookID)
	}
	return s, nil
}

// Get returns the session by id.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// GetByBook returns the open session for a book.
func (m *Manager) GetByBook(bookID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sid, ok := m.byBook[bookID]
	if !ok {
		return nil, false
	}
	return m.sessions[sid], true
}

// Sessions returns all open sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Close closes and removes one session, performing its final sync.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return errors.NotFoundf("no session %s", sessionID)
	}
	delete(m.sessions, sessionID)
	delete(m.byBook, s.BookID())
	m.mu.Unlock()

	s.Close()
	return nil
}

// CloseAll closes every open session. Used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.sessions = make(map[string]*Session)
	m.byBook = make(map[string]string)
	m.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
}
