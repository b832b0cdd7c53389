// Package session ties a user's catalog queries, collections and playback
// together.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/music"
	"github.com/justestif/moodtunes/internal/store"
)

const (
	// FeedSize is the number of tracks requested for a mood.
	FeedSize = 10

	// SearchSize is the number of tracks requested for a search.
	SearchSize = 10
)

var (
	// ErrSuperseded is returned when a newer request of the same kind was
	// issued while this one was in flight. Its result was discarded.
	ErrSuperseded = errors.New("superseded by a newer request")

	// ErrUnknownView is returned for a view kind that does not exist.
	ErrUnknownView = errors.New("unknown view")
)

// Catalog is the subset of the track repository the manager uses.
type Catalog interface {
	Recommend(ctx context.Context, mood music.Mood, limit int) ([]music.Track, error)
	Search(ctx context.Context, term string, limit int) ([]music.Track, error)
	TopCharts(ctx context.Context) ([]music.Track, error)
}

// ViewKind names a track list the user can look at.
type ViewKind string

const (
	ViewFeed    ViewKind = "feed"
	ViewSearch  ViewKind = "search"
	ViewLiked   ViewKind = "liked"
	ViewHistory ViewKind = "history"
)

// View selects a track list. HistoryID is only used with ViewHistory.
type View struct {
	Kind      ViewKind `json:"kind"`
	HistoryID string   `json:"historyId,omitempty"`
}

// SearchResults is the outcome of the last applied search.
type SearchResults struct {
	Term   string        `json:"term"`
	Tracks []music.Track `json:"tracks"`
	Empty  bool          `json:"empty"` // A search ran and matched nothing
}

// Manager holds one user's feed and search results and records mood
// history. Catalog calls run without holding the lock; a result is applied
// only if no newer call of the same kind was issued meanwhile.
type Manager struct {
	catalog Catalog
	store   *store.Store
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	feed     []music.Track
	feedMood music.Mood // Empty when the feed holds charts
	search   SearchResults
	view     View
	lastErr  error

	feedSeq   uint64
	searchSeq uint64
}

// NewManager creates a manager over catalog and st.
func NewManager(catalog Catalog, st *store.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		catalog: catalog,
		store:   st,
		logger:  logger,
		now:     time.Now,
		feed:    []music.Track{},
		search:  SearchResults{Tracks: []music.Track{}},
		view:    View{Kind: ViewFeed},
	}
}

// Store returns the user's collections.
func (m *Manager) Store() *store.Store {
	return m.store
}

// SelectMood fetches recommendations for mood. On success the feed is
// replaced and a history entry is recorded. On failure the feed and
// history are left as they were and the error is kept for LastError.
func (m *Manager) SelectMood(ctx context.Context, mood music.Mood) ([]music.Track, error) {
	if !mood.Valid() {
		return nil, fmt.Errorf("%w: %q", music.ErrUnknownMood, mood)
	}

	seq := m.nextFeedSeq()
	tracks, err := m.catalog.Recommend(ctx, mood, FeedSize)

	m.mu.Lock()
	if seq != m.feedSeq {
		m.mu.Unlock()
		m.logger.Debug("discarding stale recommendations", zap.String("mood", mood.String()))
		return nil, ErrSuperseded
	}
	if err != nil {
		m.lastErr = err
		m.mu.Unlock()
		return nil, err
	}
	entry, err := music.NewHistoryEntry(mood, tracks, m.now())
	if err != nil {
		m.lastErr = err
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	// Persist without m.mu so playback can resolve lists meanwhile.
	if err := m.store.AppendHistory(ctx, entry); err != nil {
		// The feed is still usable without its history entry.
		m.logger.Warn("recording mood history failed", zap.String("mood", mood.String()), zap.Error(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.feedSeq {
		// A newer feed request was issued while history was written; it
		// owns the feed now.
		return nil, ErrSuperseded
	}

	m.feed = tracks
	m.feedMood = mood
	m.view = View{Kind: ViewFeed}
	m.lastErr = nil
	return append([]music.Track(nil), tracks...), nil
}

// LoadTopCharts replaces the feed with the current charts. It shares the
// feed's staleness tracking with SelectMood and records no history.
func (m *Manager) LoadTopCharts(ctx context.Context) ([]music.Track, error) {
	seq := m.nextFeedSeq()
	tracks, err := m.catalog.TopCharts(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.feedSeq {
		return nil, ErrSuperseded
	}
	if err != nil {
		m.lastErr = err
		return nil, err
	}

	m.feed = tracks
	m.feedMood = ""
	m.lastErr = nil
	return append([]music.Track(nil), tracks...), nil
}

// Search runs a term search. A search with no matches is a valid result
// with Empty set. On failure the previous results are kept.
func (m *Manager) Search(ctx context.Context, term string) (SearchResults, error) {
	term = strings.TrimSpace(term)

	seq := m.nextSearchSeq()
	tracks, err := m.catalog.Search(ctx, term, SearchSize)

	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.searchSeq {
		return SearchResults{}, ErrSuperseded
	}
	if err != nil {
		m.lastErr = err
		return SearchResults{}, err
	}

	if tracks == nil {
		tracks = []music.Track{}
	}
	m.search = SearchResults{
		Term:   term,
		Tracks: tracks,
		Empty:  term != "" && len(tracks) == 0,
	}
	m.view = View{Kind: ViewSearch}
	m.lastErr = nil
	return m.searchLocked(), nil
}

// SetView changes which list is active. A history view must name an
// existing entry.
func (m *Manager) SetView(v View) error {
	switch v.Kind {
	case ViewFeed, ViewSearch, ViewLiked:
		v.HistoryID = ""
	case ViewHistory:
		if _, ok := m.store.HistoryEntry(v.HistoryID); !ok {
			return fmt.Errorf("history entry %s: %w", v.HistoryID, store.ErrNotFound)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownView, v.Kind)
	}

	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
	return nil
}

// View returns the active view.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// ResolveActiveList returns the current contents of the list v refers to.
// It is recomputed on every call. An unknown view or a deleted history
// entry resolves to an empty list.
func (m *Manager) ResolveActiveList(v View) []music.Track {
	switch v.Kind {
	case ViewFeed:
		m.mu.Lock()
		defer m.mu.Unlock()
		return append([]music.Track{}, m.feed...)
	case ViewSearch:
		m.mu.Lock()
		defer m.mu.Unlock()
		return append([]music.Track{}, m.search.Tracks...)
	case ViewLiked:
		return m.store.Liked()
	case ViewHistory:
		entry, ok := m.store.HistoryEntry(v.HistoryID)
		if !ok {
			return []music.Track{}
		}
		return append([]music.Track{}, entry.Tracks...)
	}
	return []music.Track{}
}

// ActiveList resolves the active view. It is the playback controller's
// list resolver.
func (m *Manager) ActiveList() []music.Track {
	return m.ResolveActiveList(m.View())
}

// Feed returns the feed and the mood it was fetched for.
func (m *Manager) Feed() (music.Mood, []music.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feedMood, append([]music.Track{}, m.feed...)
}

// SelectedMood returns the mood of the current feed, or "" if none.
func (m *Manager) SelectedMood() music.Mood {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feedMood
}

// SearchResults returns the last applied search.
func (m *Manager) SearchResults() SearchResults {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchLocked()
}

func (m *Manager) searchLocked() SearchResults {
	r := m.search
	r.Tracks = append([]music.Track{}, m.search.Tracks...)
	return r
}

// LastError returns the error of the most recent failed fetch, or nil if
// the latest applied fetch succeeded.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) nextFeedSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedSeq++
	return m.feedSeq
}

func (m *Manager) nextSearchSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchSeq++
	return m.searchSeq
}
