package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/moodtunes/internal/auth"
	"github.com/justestif/moodtunes/internal/catalog"
	"github.com/justestif/moodtunes/internal/insights"
	"github.com/justestif/moodtunes/internal/library"
	"github.com/justestif/moodtunes/internal/music"
	"github.com/justestif/moodtunes/internal/playback"
	"github.com/justestif/moodtunes/internal/session"
	"github.com/justestif/moodtunes/internal/store"
)

// Authenticator runs the browser sign-in flow. *auth.UserAuth implements it.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, state string, r *http.Request) (*oauth2.Token, error)
	CurrentUser(ctx context.Context, token *oauth2.Token) (*auth.Profile, error)
	Client(ctx context.Context, token *oauth2.Token) *spotify.Client
}

var _ Authenticator = (*auth.UserAuth)(nil)

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	auth      Authenticator
	sessions  SessionManager
	registry  *session.Registry
	suggester *insights.Suggester
	importer  *library.Importer
	profiles  music.Profiles
	cookies   cookies
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Dependencies, c cookies) *Handlers {
	return &Handlers{
		auth:      deps.Auth,
		sessions:  deps.Sessions,
		registry:  deps.Registry,
		suggester: deps.Suggester,
		importer:  deps.Importer,
		profiles:  deps.Profiles,
		cookies:   c,
		logger:    deps.Logger,
	}
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("generating oauth state failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start login")
		return
	}

	h.cookies.setState(w, state)
	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
// Any failure sends the browser home without a session.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	var state string
	if c, err := r.Cookie(stateCookieName); err == nil {
		state = c.Value
	}

	// The state is single use whatever the outcome.
	h.cookies.clearState(w)

	token, err := h.auth.Exchange(r.Context(), state, r)
	if err != nil {
		var exErr *auth.AuthExchangeError
		if errors.As(err, &exErr) {
			h.logger.Warn("oauth callback rejected", zap.String("reason", exErr.Reason), zap.Error(exErr.Err))
		} else {
			h.logger.Warn("oauth callback rejected", zap.Error(err))
		}
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), token)
	if err != nil {
		h.logger.Warn("fetching user profile failed", zap.Error(err))
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	sess, err := h.sessions.Create(r.Context(), token, user)
	if err != nil {
		h.logger.Error("creating session failed", zap.String("user", user.ID), zap.Error(err))
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	h.cookies.setSession(w, sess)
	h.logger.Info("user signed in", zap.String("user", user.ID))

	// Redirect to home
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Logout clears the session and redirects to home (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if id := h.cookies.sessionID(r); id != "" {
		sess := h.sessions.Get(r.Context(), id)
		h.sessions.Delete(r.Context(), id)

		// Other browsers signed in as the same user keep their feed and player.
		if sess != nil && h.sessions.CountForUser(r.Context(), sess.UserID) == 0 {
			h.registry.Drop(sess.UserID)
		}
	}

	h.cookies.clearSession(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type contextKey int

const (
	webSessionKey contextKey = iota
	userSessionKey
)

// RequireSession rejects requests without a valid session cookie and
// attaches the user's session to the request context.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := h.cookies.sessionID(r)
		if id == "" {
			writeError(w, http.StatusUnauthorized, "not signed in")
			return
		}
		sess := h.sessions.Get(r.Context(), id)
		if sess == nil {
			h.cookies.clearSession(w)
			writeError(w, http.StatusUnauthorized, "session expired")
			return
		}

		user := h.registry.Get(r.Context(), sess.UserID)
		ctx := context.WithValue(r.Context(), webSessionKey, sess)
		ctx = context.WithValue(ctx, userSessionKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func webSessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(webSessionKey).(*Session)
	return s
}

func userSessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(userSessionKey).(*session.Session)
	return s
}

// saveRefreshedToken stores the token api holds if oauth2 refreshed it
// during the request.
func (h *Handlers) saveRefreshedToken(ctx context.Context, sess *Session, api *spotify.Client) {
	token, err := api.Token()
	if err != nil {
		h.logger.Debug("reading user token failed", zap.Error(err))
		return
	}
	if sess.Token != nil && token.AccessToken == sess.Token.AccessToken {
		return
	}
	h.sessions.UpdateToken(ctx, sess.ID, token)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, music.ErrUnknownMood),
		errors.Is(err, session.ErrUnknownView):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, playback.ErrTrackNotInList):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, library.ErrImportTooRecent):
		return http.StatusTooManyRequests
	case errors.Is(err, catalog.ErrCatalog):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error, logging server-side failures.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
