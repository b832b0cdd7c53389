package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/justestif/moodtunes/internal/insights"
	"github.com/justestif/moodtunes/internal/music"
	"github.com/justestif/moodtunes/internal/playback"
	"github.com/justestif/moodtunes/internal/session"
)

type meResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type moodResponse struct {
	Mood   music.Mood `json:"mood"`
	Label  string     `json:"label"`
	Genres []string   `json:"genres"`
}

type feedResponse struct {
	Mood   music.Mood    `json:"mood,omitempty"`
	Tracks []music.Track `json:"tracks"`
	View   session.View  `json:"view"`
	Error  string        `json:"error,omitempty"`
}

type likedResponse struct {
	Liked bool        `json:"liked"`
	Track music.Track `json:"track"`
}

// playerResponse is a playback snapshot with times in seconds.
type playerResponse struct {
	State    playback.State   `json:"state"`
	Index    int              `json:"index"`
	Track    *music.Track     `json:"track,omitempty"`
	Position float64          `json:"position"`
	Duration float64          `json:"duration"`
	Outcome  playback.Outcome `json:"outcome,omitempty"`
}

func newPlayerResponse(s playback.Snapshot, outcome playback.Outcome) playerResponse {
	return playerResponse{
		State:    s.State,
		Index:    s.Index,
		Track:    s.Track,
		Position: s.Position.Seconds(),
		Duration: s.Duration.Seconds(),
		Outcome:  outcome,
	}
}

type playRequest struct {
	TrackID string        `json:"trackId"`
	View    *session.View `json:"view,omitempty"` // Switch view before playing
}

// Player event types sent by the audio element.
const (
	eventEnded  = "ended"
	eventError  = "error"
	eventTime   = "time"
	eventLoaded = "loaded"
)

type playerEvent struct {
	Type    string  `json:"type"`
	Seconds float64 `json:"seconds"` // Current time or duration
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Me returns the signed-in user (GET /api/me).
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	sess := webSessionFrom(r.Context())
	writeJSON(w, http.StatusOK, meResponse{ID: sess.UserID, Name: sess.UserName})
}

// ListMoods returns the selectable moods (GET /api/moods).
func (h *Handlers) ListMoods(w http.ResponseWriter, _ *http.Request) {
	moods := make([]moodResponse, 0, len(music.AllMoods))
	for _, m := range music.AllMoods {
		p := h.profiles[m]
		moods = append(moods, moodResponse{Mood: m, Label: p.Label, Genres: p.Genres})
	}
	writeJSON(w, http.StatusOK, moods)
}

// SuggestMoods clusters the user's liked songs into mood suggestions
// (GET /api/moods/suggested).
func (h *Handlers) SuggestMoods(w http.ResponseWriter, r *http.Request) {
	if h.suggester == nil {
		writeJSON(w, http.StatusOK, []insights.Suggestion{})
		return
	}

	user := userSessionFrom(r.Context())
	suggestions, err := h.suggester.Suggest(r.Context(), user.Store.Liked())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

// SelectMood fetches the feed for a mood (POST /api/moods/{mood}).
func (h *Handlers) SelectMood(w http.ResponseWriter, r *http.Request) {
	mood, err := music.ParseMood(chi.URLParam(r, "mood"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	mgr := userSessionFrom(r.Context()).Manager
	tracks, err := mgr.SelectMood(r.Context(), mood)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Mood: mood, Tracks: tracks, View: mgr.View()})
}

// Feed returns the current feed and the last fetch error (GET /api/feed).
func (h *Handlers) Feed(w http.ResponseWriter, r *http.Request) {
	mgr := userSessionFrom(r.Context()).Manager
	mood, tracks := mgr.Feed()
	resp := feedResponse{Mood: mood, Tracks: tracks, View: mgr.View()}
	if err := mgr.LastError(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Charts loads the top charts into the feed (GET /api/charts).
func (h *Handlers) Charts(w http.ResponseWriter, r *http.Request) {
	mgr := userSessionFrom(r.Context()).Manager
	tracks, err := mgr.LoadTopCharts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Tracks: tracks, View: mgr.View()})
}

// Search runs a catalog search (GET /api/search?q=).
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	mgr := userSessionFrom(r.Context()).Manager
	results, err := mgr.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// SetView switches the list playback navigates over (PUT /api/view).
func (h *Handlers) SetView(w http.ResponseWriter, r *http.Request) {
	var v session.View
	if err := decodeJSON(w, r, &v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid view")
		return
	}

	mgr := userSessionFrom(r.Context()).Manager
	if err := mgr.SetView(v); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": mgr.View(), "tracks": mgr.ActiveList()})
}

// Liked returns the liked songs in insertion order (GET /api/liked).
func (h *Handlers) Liked(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userSessionFrom(r.Context()).Store.Liked())
}

// ToggleLiked likes or unlikes the posted track (POST /api/liked).
func (h *Handlers) ToggleLiked(w http.ResponseWriter, r *http.Request) {
	var track music.Track
	if err := decodeJSON(w, r, &track); err != nil || strings.TrimSpace(track.ID) == "" {
		writeError(w, http.StatusBadRequest, "a track with an id is required")
		return
	}

	liked, err := userSessionFrom(r.Context()).Store.ToggleLiked(r.Context(), track)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likedResponse{Liked: liked, Track: track})
}

// SearchLiked fuzzy-matches liked songs (GET /api/liked/search?q=).
func (h *Handlers) SearchLiked(w http.ResponseWriter, r *http.Request) {
	st := userSessionFrom(r.Context()).Store
	writeJSON(w, http.StatusOK, st.SearchLiked(r.URL.Query().Get("q")))
}

// ImportLibrary likes the user's saved Spotify tracks
// (POST /api/liked/import).
func (h *Handlers) ImportLibrary(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeError(w, http.StatusNotFound, "library import is disabled")
		return
	}

	sess := webSessionFrom(r.Context())
	user := userSessionFrom(r.Context())
	api := h.auth.Client(r.Context(), sess.Token)

	result, err := h.importer.Import(r.Context(), api, sess.UserID, user.Store)
	h.saveRefreshedToken(r.Context(), sess, api)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// History returns mood history, optionally for one mood
// (GET /api/history?mood=).
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	var mood music.Mood
	if q := r.URL.Query().Get("mood"); q != "" && q != "all" {
		m, err := music.ParseMood(q)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		mood = m
	}
	writeJSON(w, http.StatusOK, userSessionFrom(r.Context()).Store.FilterHistory(mood))
}

// DeleteHistoryEntry removes one history entry (DELETE /api/history/{id}).
func (h *Handlers) DeleteHistoryEntry(w http.ResponseWriter, r *http.Request) {
	st := userSessionFrom(r.Context()).Store
	if err := st.DeleteHistoryEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearHistory removes all history entries (DELETE /api/history).
func (h *Handlers) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := userSessionFrom(r.Context()).Store.ClearHistory(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Player returns the playback state (GET /api/player).
func (h *Handlers) Player(w http.ResponseWriter, r *http.Request) {
	player := userSessionFrom(r.Context()).Player
	writeJSON(w, http.StatusOK, newPlayerResponse(player.Snapshot(), ""))
}

// Play starts a track from the active list (POST /api/player/play).
func (h *Handlers) Play(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeJSON(w, r, &req); err != nil || req.TrackID == "" {
		writeError(w, http.StatusBadRequest, "trackId is required")
		return
	}

	user := userSessionFrom(r.Context())
	if req.View != nil {
		if err := user.Manager.SetView(*req.View); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	list := user.Manager.ActiveList()
	i := music.IndexOf(list, req.TrackID)
	if i < 0 {
		h.fail(w, r, playback.ErrTrackNotInList)
		return
	}

	outcome, err := user.Player.Play(list[i], list)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlayerResponse(user.Player.Snapshot(), outcome))
}

// TogglePlayPause flips between playing and paused (POST /api/player/toggle).
func (h *Handlers) TogglePlayPause(w http.ResponseWriter, r *http.Request) {
	player := userSessionFrom(r.Context()).Player
	outcome := player.TogglePlayPause()
	writeJSON(w, http.StatusOK, newPlayerResponse(player.Snapshot(), outcome))
}

// SkipNext moves to the next playable track (POST /api/player/next).
func (h *Handlers) SkipNext(w http.ResponseWriter, r *http.Request) {
	player := userSessionFrom(r.Context()).Player
	outcome := player.SkipNext()
	writeJSON(w, http.StatusOK, newPlayerResponse(player.Snapshot(), outcome))
}

// SkipPrevious moves to the previous playable track
// (POST /api/player/previous).
func (h *Handlers) SkipPrevious(w http.ResponseWriter, r *http.Request) {
	player := userSessionFrom(r.Context()).Player
	outcome := player.SkipPrevious()
	writeJSON(w, http.StatusOK, newPlayerResponse(player.Snapshot(), outcome))
}

// PlayerEvent relays audio element events (POST /api/player/events).
func (h *Handlers) PlayerEvent(w http.ResponseWriter, r *http.Request) {
	var ev playerEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}

	player := userSessionFrom(r.Context()).Player
	var outcome playback.Outcome
	switch ev.Type {
	case eventEnded:
		outcome = player.OnEnded()
	case eventError:
		outcome = player.OnError()
	case eventTime:
		player.OnTimeUpdate(seconds(ev.Seconds))
	case eventLoaded:
		player.OnLoaded(seconds(ev.Seconds))
	default:
		writeError(w, http.StatusBadRequest, "unknown event type "+ev.Type)
		return
	}
	writeJSON(w, http.StatusOK, newPlayerResponse(player.Snapshot(), outcome))
}
