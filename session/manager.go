// Package session keeps the live sessions of the service. Each session owns
// its own prediction history; ending or evicting a session discards it.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"firequest/pipeline"
)

// ErrNotFound is returned for ids that were never issued, were ended, or
// expired.
var ErrNotFound = errors.New("session not found")

// Config bounds the number of live sessions and how long an idle one lives.
// A zero IdleTTL disables expiry.
type Config struct {
	MaxSessions int           `yaml:"max_sessions" split_words:"true" validate:"gte=1"`
	IdleTTL     time.Duration `yaml:"idle_ttl" split_words:"true" validate:"gte=0"`
}

// DefaultConfig keeps up to 1000 sessions, each for 30 idle minutes.
func DefaultConfig() Config {
	return Config{
		MaxSessions: 1000,
		IdleTTL:     30 * time.Minute,
	}
}

// Manager issues and looks up sessions. When full, the least recently used
// session is evicted. It is safe for concurrent use.
type Manager struct {
	// mu makes Get's lookup and TTL refresh atomic with respect to End.
	mu       sync.Mutex
	sessions *expirable.LRU[string, *pipeline.Session]
	logger   *zap.Logger
}

// NewManager creates an empty manager. A nil logger discards output.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	m := &Manager{logger: logger}
	m.sessions = expirable.NewLRU[string, *pipeline.Session](cfg.MaxSessions, m.onEvict, cfg.IdleTTL)
	return m
}

func (m *Manager) onEvict(id string, s *pipeline.Session) {
	m.logger.Debug("session closed", zap.String("session_id", id), zap.Int("history", s.Len()))
}

// Create starts a new session with an empty history.
func (m *Manager) Create() *pipeline.Session {
	s := pipeline.NewSession(uuid.NewString())
	m.mu.Lock()
	m.sessions.Add(s.ID, s)
	m.mu.Unlock()
	m.logger.Debug("session created", zap.String("session_id", s.ID))
	return s
}

// Get returns the session and restarts its idle timer.
func (m *Manager) Get(id string) (*pipeline.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	// Re-adding an existing key resets its expiry.
	m.sessions.Add(id, s)
	return s, nil
}

// End discards the session and its history.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sessions.Remove(id) {
		return ErrNotFound
	}
	return nil
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}
