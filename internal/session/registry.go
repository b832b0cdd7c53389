package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/playback"
	"github.com/justestif/moodtunes/internal/store"
)

// Session is everything held for one signed-in user.
type Session struct {
	UserID  string
	Manager *Manager
	Player  *playback.Controller
	Store   *store.Store
}

// Registry creates sessions on first use and keeps them for the life of
// the process.
type Registry struct {
	catalog Catalog
	backend store.Backend
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry whose sessions share catalog and backend.
func NewRegistry(catalog Catalog, backend store.Backend, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		catalog:  catalog,
		backend:  backend,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for userID, creating it if needed.
func (r *Registry) Get(ctx context.Context, userID string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()

	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if s, ok = r.sessions[userID]; ok {
		return s
	}

	s = r.newSession(ctx, userID)
	r.sessions[userID] = s
	return s
}

// Drop forgets the session for userID. Its collections stay persisted.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) newSession(ctx context.Context, userID string) *Session {
	logger := r.logger.With(zap.String("user", userID))

	st := store.Open(ctx, r.backend, userID, logger)
	mgr := NewManager(r.catalog, st, logger)
	player := playback.NewController(mgr.ActiveList)
	player.OnChange(func(s playback.Snapshot) {
		if s.Track == nil {
			return
		}
		logger.Debug("playback changed",
			zap.String("state", string(s.State)),
			zap.String("track", s.Track.ID))
	})

	logger.Info("session created",
		zap.Int("liked", len(st.Liked())),
		zap.Int("history", len(st.History())))

	return &Session{
		UserID:  userID,
		Manager: mgr,
		Player:  player,
		Store:   st,
	}
}
