package consent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/consentry/consentry/internal/events"
	"github.com/consentry/consentry/internal/storage"
)

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("consent session not found")

// Session is one live page session: an orchestrator plus bookkeeping.
type Session struct {
	ID           string
	Scope        string
	Orchestrator *Orchestrator
	CreatedAt    time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) seen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// RegistryConfig holds the shared collaborators handed to every session.
type RegistryConfig struct {
	Configs   *ConfigStore
	Store     storage.Store
	Lists     SnapshotProvider
	Publisher events.Publisher
	Logger    zerolog.Logger

	// IdleTTL expires sessions with no activity (default: 30m).
	IdleTTL time.Duration
}

// Registry creates and tracks consent sessions, one orchestrator each.
type Registry struct {
	configs   *ConfigStore
	store     storage.Store
	lists     SnapshotProvider
	publisher events.Publisher
	logger    zerolog.Logger
	idleTTL   time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	idleTTL := cfg.IdleTTL
	if idleTTL == 0 {
		idleTTL = 30 * time.Minute
	}
	return &Registry{
		configs:   cfg.Configs,
		store:     cfg.Store,
		lists:     cfg.Lists,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		idleTTL:   idleTTL,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Create starts a new session for the given client scope under the active
// site configuration. ErrDisabled is passed through when TCF is off.
func (r *Registry) Create(ctx context.Context, scope string) (*Session, error) {
	id := "ses_" + uuid.NewString()[:22]

	orc, err := New(Config{
		Site:      r.configs.Current(),
		Store:     r.store,
		Lists:     r.lists,
		Publisher: r.publisher,
		Logger:    r.logger,
		SessionID: id,
		Scope:     scope,
	})
	if err != nil {
		return nil, err
	}

	orc.Start(ctx)

	now := r.now()
	session := &Session{
		ID:           id,
		Scope:        scope,
		Orchestrator: orc,
		CreatedAt:    now,
		lastSeen:     now,
	}

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	r.logger.Info().Str("session_id", id).Msg("consent session created")
	return session, nil
}

// Get returns the session with the given id and marks it active.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	session.touch(r.now())
	return session, nil
}

// Remove drops the session with the given id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep expires idle sessions and returns the count removed. Called
// periodically by the owning process.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, session := range r.sessions {
		if session.seen().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug().Int("expired", removed).Msg("idle consent sessions swept")
	}
	return removed
}
