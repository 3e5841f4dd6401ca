package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"albuminome/pkg/domain"
)

// ErrNotFound reports an unknown or expired session.
var ErrNotFound = errors.New("session: not found")

// Defaults applied when the manager configuration leaves them zero.
const (
	DefaultMaxSessions = 1024
	DefaultTTL         = 30 * time.Minute
)

// Logger is the subset of core.Logger used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
}

// Config sizes the session cache.
type Config struct {
	MaxSessions int
	TTL         time.Duration
}

// Manager keeps sessions private to their ID and evicts idle ones. Every
// successful Get restarts the session's TTL.
type Manager struct {
	mu       sync.Mutex
	explorer Explorer
	defaults func() domain.Params
	cache    *expirable.LRU[string, *Session]
	logger   Logger
	now      func() time.Time
}

// NewManager builds a manager. defaults supplies the parameters of new
// sessions.
func NewManager(explorer Explorer, defaults func() domain.Params, cfg Config, logger Logger) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	m := &Manager{explorer: explorer, defaults: defaults, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	m.cache = expirable.NewLRU[string, *Session](cfg.MaxSessions, func(id string, _ *Session) {
		if m.logger != nil {
			m.logger.Debug("session evicted", "session", id)
		}
	}, cfg.TTL)
	return m
}

// Create starts a session with the default parameters.
func (m *Manager) Create(ctx context.Context, presenter Presenter) (*Session, error) {
	id := uuid.NewString()
	s, err := New(ctx, id, m.explorer, m.defaults(), presenter, m.now)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.cache.Add(id, s)
	return s, nil
}

// Get returns a live session and restarts its expiry.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	// expirable.LRU.Get keeps the original deadline; re-adding moves it.
	m.cache.Add(id, s)
	return s, nil
}

// Delete ends a session.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Remove(id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int { return m.cache.Len() }
