package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashdeck/hashdeck/internal/archive"
	"github.com/hashdeck/hashdeck/internal/config"
	"github.com/hashdeck/hashdeck/internal/events"
	"github.com/hashdeck/hashdeck/internal/models"
	"github.com/hashdeck/hashdeck/internal/potfile"
	"github.com/hashdeck/hashdeck/internal/session"
	"github.com/hashdeck/hashdeck/pkg/debug"
)

// Manager is the process-wide table of live sessions. All session creation
// and eviction funnels through it; no other component holds session
// references beyond the bus events they observe.
type Manager struct {
	cfg    *config.Config
	shared *potfile.Shared
	bus    *events.Bus
	store  *archive.Store

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewManager creates an empty session registry
func NewManager(cfg *config.Config, shared *potfile.Shared, bus *events.Bus, store *archive.Store) *Manager {
	return &Manager{
		cfg:      cfg,
		shared:   shared,
		bus:      bus,
		store:    store,
		sessions: make(map[string]*session.Session),
	}
}

func (m *Manager) options() session.Options {
	return session.Options{
		Binary:      m.cfg.HashcatBinary,
		SessionsDir: m.cfg.SessionsDir(),
		StatusTimer: m.cfg.StatusTimer,
		PotfilePoll: m.cfg.PotfilePoll,
		Shared:      m.shared,
		Bus:         m.bus,
		Archive:     m.store,
		OnExit:      m.evict,
	}
}

// Start launches a new supervised session. Conflicting names among active
// sessions are rejected before anything is spawned.
func (m *Manager) Start(cfg session.Config) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if cfg.Name != "" && existing.Name == cfg.Name {
			return nil, fmt.Errorf("a session named %q is already active", cfg.Name)
		}
	}

	sess, err := session.Launch(cfg, m.options())
	if err != nil {
		return nil, err
	}

	m.sessions[sess.ID] = sess
	debug.Info("Session %s (%s) registered, active sessions: %d", sess.ID, sess.Name, len(m.sessions))
	return sess, nil
}

// Restore resumes a checkpointed session. With an empty id the most
// recently modified checkpoint is used; having none is a reported,
// non-fatal error and no session is created.
func (m *Manager) Restore(sessionID string) (*session.Session, error) {
	if sessionID == "" {
		var err error
		sessionID, err = session.FindLatestRestore(m.cfg.SessionsDir())
		if err != nil {
			debug.Warning("Restore request failed: %v", err)
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		return nil, fmt.Errorf("session %s is already active", sessionID)
	}

	sess, err := session.Launch(session.Config{
		Restore:   true,
		SessionID: sessionID,
	}, m.options())
	if err != nil {
		return nil, err
	}

	m.sessions[sess.ID] = sess
	return sess, nil
}

// Get looks up an active session by id
func (m *Manager) Get(id string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// List returns the observer views of every active session
func (m *Manager) List() []models.SessionView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]models.SessionView, 0, len(m.sessions))
	for _, sess := range m.sessions {
		views = append(views, sess.View())
	}
	return views
}

// ActiveCount returns the number of live sessions
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StopByID signals the identified session's worker to terminate
func (m *Manager) StopByID(id string) error {
	sess, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	return sess.Stop()
}

// StopSoleActive stops the only active session, for clients that track a
// single session and do not know its id. It refuses, and reports why, when
// zero or more than one session is active.
func (m *Manager) StopSoleActive() error {
	m.mu.RLock()
	var sole *session.Session
	count := len(m.sessions)
	for _, sess := range m.sessions {
		sole = sess
	}
	m.mu.RUnlock()

	if count == 0 {
		return fmt.Errorf("no active session to stop")
	}
	if count > 1 {
		return fmt.Errorf("%d sessions active, a session id is required", count)
	}
	return sole.Stop()
}

// Delete force-removes a session a client has discarded: the worker is
// killed if still alive, bookkeeping dropped, and observers notified.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s not found", id)
	}

	if err := sess.Kill(); err != nil {
		debug.Debug("Session %s worker already gone: %v", id, err)
	}

	m.bus.Publish(models.NewEvent(models.EventSessionDeleted, id, nil))
	debug.Info("Session %s deleted", id)
	return nil
}

// Snapshot answers "what is the world right now" for a newly connected
// observer: the shared potfile contents plus every active session.
func (m *Manager) Snapshot() models.Snapshot {
	lines, err := m.shared.Snapshot()
	if err != nil {
		debug.Error("Failed to read shared potfile for snapshot: %v", err)
	}
	return models.Snapshot{
		Potfile:  lines,
		Sessions: m.List(),
	}
}

// AttributePower adds a shared hardware power reading to every active
// session's accumulator. Equal attribution across active sessions is a
// documented approximation, not a per-device split.
func (m *Manager) AttributePower(watts float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sess := range m.sessions {
		sess.AddPowerSample(watts)
	}
}

// evict removes a finished session from the table. Runs from the session's
// exit handler after its finished event has been published.
func (m *Manager) evict(sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.sessions[sess.ID]; ok && current == sess {
		delete(m.sessions, sess.ID)
		debug.Info("Session %s evicted, active sessions: %d", sess.ID, len(m.sessions))
	}
}

// WaitIdle blocks until no session is active or the timeout passes. Used
// during shutdown.
func (m *Manager) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.ActiveCount() == 0 {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return m.ActiveCount() == 0
}
