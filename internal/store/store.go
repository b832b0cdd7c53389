// Package store persists a user's liked tracks and mood history.
//
// The Store keeps both collections in memory and writes every mutation
// through to a Backend before it becomes visible, so memory and backend
// agree after each call returns.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/music"
)

// Collection keys.
const (
	KeyLiked   = "likedSongs"
	KeyHistory = "moodHistory"
)

// ErrNotFound is returned when a history entry does not exist.
var ErrNotFound = errors.New("not found")

// Store holds one namespace's collections.
type Store struct {
	backend   Backend
	namespace string
	logger    *zap.Logger

	mu      sync.Mutex
	liked   []music.Track
	history []music.HistoryEntry // Newest first
}

// Open loads the collections for namespace from backend. Unreadable or
// malformed collections are logged and start empty; Open never fails.
func Open(ctx context.Context, backend Backend, namespace string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend:   backend,
		namespace: namespace,
		logger:    logger.With(zap.String("namespace", namespace)),
		liked:     []music.Track{},
		history:   []music.HistoryEntry{},
	}

	var liked []music.Track
	if s.Load(ctx, KeyLiked, &liked) && liked != nil {
		s.liked = liked
	}

	var history []music.HistoryEntry
	if s.Load(ctx, KeyHistory, &history) && history != nil {
		if len(history) > music.MaxHistoryEntries {
			history = history[:music.MaxHistoryEntries]
			if err := s.Save(ctx, KeyHistory, history); err != nil {
				s.logger.Warn("saving trimmed history failed", zap.Error(err))
			}
		}
		s.history = history
	}

	return s
}

func (s *Store) key(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

// Load decodes the value stored under key into v and reports whether it
// did. A read failure or malformed payload is logged and reported as
// false; the stored data is left untouched.
func (s *Store) Load(ctx context.Context, key string, v any) bool {
	data, found, err := s.backend.Get(ctx, s.key(key))
	if err != nil {
		s.logger.Warn("reading collection failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("ignoring malformed collection", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Save encodes v and writes it under key.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.backend.Put(ctx, s.key(key), data); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Liked returns the liked tracks in the order they were liked.
func (s *Store) Liked() []music.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]music.Track{}, s.liked...)
}

// IsLiked reports whether the track with id is liked.
func (s *Store) IsLiked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return music.IndexOf(s.liked, id) >= 0
}

// ToggleLiked removes the track if it is liked and appends it otherwise.
// It returns whether the track is liked afterwards. On a save failure the
// collection is unchanged.
func (s *Store) ToggleLiked(ctx context.Context, track music.Track) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next []music.Track
	liked := false
	if i := music.IndexOf(s.liked, track.ID); i >= 0 {
		next = make([]music.Track, 0, len(s.liked)-1)
		next = append(next, s.liked[:i]...)
		next = append(next, s.liked[i+1:]...)
	} else {
		next = make([]music.Track, 0, len(s.liked)+1)
		next = append(next, s.liked...)
		next = append(next, track)
		liked = true
	}

	if err := s.Save(ctx, KeyLiked, next); err != nil {
		return !liked, err
	}
	s.liked = next
	return liked, nil
}

// AddLiked likes every track in tracks that is not liked yet, in order,
// and returns how many were added. Nothing is written when none are new.
func (s *Store) AddLiked(ctx context.Context, tracks []music.Track) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append([]music.Track(nil), s.liked...)
	for _, t := range tracks {
		if t.ID == "" || music.IndexOf(next, t.ID) >= 0 {
			continue
		}
		next = append(next, t)
	}

	added := len(next) - len(s.liked)
	if added == 0 {
		return 0, nil
	}
	if err := s.Save(ctx, KeyLiked, next); err != nil {
		return 0, err
	}
	s.liked = next
	return added, nil
}

// SearchLiked returns liked tracks whose title or artist fuzzily matches
// term, closest matches first. Case and diacritics are ignored. A blank
// term returns every liked track.
func (s *Store) SearchLiked(term string) []music.Track {
	liked := s.Liked()
	term = strings.TrimSpace(term)
	if term == "" {
		return liked
	}

	targets := make([]string, len(liked))
	for i, t := range liked {
		targets[i] = t.Title + " " + t.Artist
	}

	ranks := fuzzy.RankFindNormalizedFold(term, targets)
	sort.Stable(ranks)

	out := make([]music.Track, len(ranks))
	for i, r := range ranks {
		out[i] = liked[r.OriginalIndex]
	}
	return out
}

// History returns the mood history, newest first.
func (s *Store) History() []music.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]music.HistoryEntry{}, s.history...)
}

// HistoryEntry returns the entry with id.
func (s *Store) HistoryEntry(id string) (music.HistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.history {
		if e.ID == id {
			return e, true
		}
	}
	return music.HistoryEntry{}, false
}

// FilterHistory returns the entries for mood, newest first. An empty mood
// returns the whole history.
func (s *Store) FilterHistory(mood music.Mood) []music.HistoryEntry {
	all := s.History()
	if mood == "" {
		return all
	}
	out := make([]music.HistoryEntry, 0, len(all))
	for _, e := range all {
		if e.Mood == mood {
			out = append(out, e)
		}
	}
	return out
}

// AppendHistory adds entry as the newest item, evicting the oldest beyond
// music.MaxHistoryEntries.
func (s *Store) AppendHistory(ctx context.Context, entry music.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(len(s.history)+1, music.MaxHistoryEntries)
	next := make([]music.HistoryEntry, 0, n)
	next = append(next, entry)
	next = append(next, s.history[:n-1]...)

	return s.commitHistory(ctx, next)
}

// DeleteHistoryEntry removes the entry with id.
// Returns ErrNotFound if there is no such entry.
func (s *Store) DeleteHistoryEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := -1
	for j, e := range s.history {
		if e.ID == id {
			i = j
			break
		}
	}
	if i < 0 {
		return fmt.Errorf("history entry %s: %w", id, ErrNotFound)
	}

	next := make([]music.HistoryEntry, 0, len(s.history)-1)
	next = append(next, s.history[:i]...)
	next = append(next, s.history[i+1:]...)

	return s.commitHistory(ctx, next)
}

// ClearHistory removes every history entry.
func (s *Store) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitHistory(ctx, []music.HistoryEntry{})
}

// commitHistory persists next and then makes it current. s.mu must be held.
func (s *Store) commitHistory(ctx context.Context, next []music.HistoryEntry) error {
	if err := s.Save(ctx, KeyHistory, next); err != nil {
		return err
	}
	s.history = next
	return nil
}
