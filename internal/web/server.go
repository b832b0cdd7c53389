// Package web provides the HTTP server and JSON API for MoodTunes.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/insights"
	"github.com/justestif/moodtunes/internal/library"
	"github.com/justestif/moodtunes/internal/music"
	"github.com/justestif/moodtunes/internal/session"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr          string
	SecureCookies bool
	SessionTTL    time.Duration
}

// Dependencies are the services the handlers call into.
type Dependencies struct {
	Auth      Authenticator
	Sessions  SessionManager
	Registry  *session.Registry
	Suggester *insights.Suggester
	Importer  *library.Importer // Nil disables library import
	Profiles  music.Profiles
	Logger    *zap.Logger
}

// Server is the HTTP server for the web application.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *zap.Logger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Profiles == nil {
		deps.Profiles = music.DefaultProfiles()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}

	handlers := NewHandlers(deps, cookies{secure: cfg.SecureCookies, ttl: cfg.SessionTTL})

	s := &Server{
		router:   chi.NewRouter(),
		handlers: handlers,
		logger:   deps.Logger,
	}

	// Configure middleware
	s.setupMiddleware()

	// Configure routes
	s.setupRoutes()

	// Create HTTP server
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// ServeHTTP lets the server be used directly as a handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.Get("/healthz", h.Health)

	// Auth routes
	s.router.Get("/auth/login", h.Login)
	s.router.Get("/callback", h.Callback)
	s.router.Post("/auth/logout", h.Logout)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(h.RequireSession)

		r.Get("/me", h.Me)

		r.Get("/moods", h.ListMoods)
		r.Get("/moods/suggested", h.SuggestMoods)
		r.Post("/moods/{mood}", h.SelectMood)

		r.Get("/feed", h.Feed)
		r.Get("/charts", h.Charts)
		r.Get("/search", h.Search)
		r.Put("/view", h.SetView)

		r.Get("/liked", h.Liked)
		r.Post("/liked", h.ToggleLiked)
		r.Get("/liked/search", h.SearchLiked)
		r.Post("/liked/import", h.ImportLibrary)

		r.Get("/history", h.History)
		r.Delete("/history", h.ClearHistory)
		r.Delete("/history/{id}", h.DeleteHistoryEntry)

		r.Get("/player", h.Player)
		r.Post("/player/play", h.Play)
		r.Post("/player/toggle", h.TogglePlayPause)
		r.Post("/player/next", h.SkipNext)
		r.Post("/player/previous", h.SkipPrevious)
		r.Post("/player/events", h.PlayerEvent)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", "http://"+s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	// Channel to receive shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	select {
	case err := <-errCh:
		return err
	case <-stop:
		s.logger.Info("shutting down server")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
