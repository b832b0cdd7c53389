// Package library imports a user's saved Spotify tracks into their liked
// songs.
package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/catalog"
	"github.com/justestif/moodtunes/internal/store"
)

// ErrImportTooRecent is returned when an import is attempted within the
// cooldown period.
var ErrImportTooRecent = errors.New("import attempted too recently")

const (
	// DefaultCooldown is the default time between allowed imports.
	DefaultCooldown = 1 * time.Hour

	// DefaultMaxTracks caps how many saved tracks one import reads.
	DefaultMaxTracks = 500
)

// Importer copies saved tracks into liked songs, at most once per cooldown
// per user.
type Importer struct {
	cooldown  time.Duration
	maxTracks int
	logger    *zap.Logger
	now       func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithCooldown sets the minimum time between imports for one user.
func WithCooldown(d time.Duration) Option {
	return func(i *Importer) {
		i.cooldown = d
	}
}

// WithMaxTracks caps the tracks read per import.
func WithMaxTracks(n int) Option {
	return func(i *Importer) {
		i.maxTracks = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Importer) {
		i.logger = l
	}
}

// New creates an Importer.
func New(opts ...Option) *Importer {
	i := &Importer{
		cooldown:  DefaultCooldown,
		maxTracks: DefaultMaxTracks,
		logger:    zap.NewNop(),
		now:       time.Now,
		last:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Result describes a finished import.
type Result struct {
	Fetched    int       `json:"fetched"`
	Added      int       `json:"added"`
	ImportedAt time.Time `json:"importedAt"`
}

// CanImport reports whether userID may import now, and if not, when the
// next import is allowed.
func (i *Importer) CanImport(userID string) (bool, time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.canImportLocked(userID)
}

func (i *Importer) canImportLocked(userID string) (bool, time.Time) {
	last, ok := i.last[userID]
	if !ok {
		return true, time.Time{}
	}
	next := last.Add(i.cooldown)
	if i.now().Before(next) {
		return false, next
	}
	return true, time.Time{}
}

// Import reads the saved tracks of the user api acts for and likes the ones
// not liked yet. Returns ErrImportTooRecent within the cooldown. A failed
// import does not start the cooldown.
func (i *Importer) Import(ctx context.Context, api *spotify.Client, userID string, st *store.Store) (*Result, error) {
	i.mu.Lock()
	ok, next := i.canImportLocked(userID)
	if !ok {
		i.mu.Unlock()
		return nil, fmt.Errorf("%w: next import available at %s", ErrImportTooRecent, next.Format(time.RFC3339))
	}
	// Reserve the slot so concurrent imports for the same user are refused.
	i.last[userID] = i.now()
	i.mu.Unlock()

	result, err := i.run(ctx, api, st)
	if err != nil {
		i.mu.Lock()
		delete(i.last, userID)
		i.mu.Unlock()
		return nil, err
	}

	i.logger.Info("library imported",
		zap.String("user", userID),
		zap.Int("fetched", result.Fetched),
		zap.Int("added", result.Added))
	return result, nil
}

func (i *Importer) run(ctx context.Context, api *spotify.Client, st *store.Store) (*Result, error) {
	tracks, err := catalog.SavedTracks(ctx, api, i.maxTracks)
	if err != nil {
		return nil, fmt.Errorf("fetching saved tracks: %w", err)
	}

	added, err := st.AddLiked(ctx, tracks)
	if err != nil {
		return nil, fmt.Errorf("saving liked songs: %w", err)
	}

	return &Result{
		Fetched:    len(tracks),
		Added:      added,
		ImportedAt: i.now(),
	}, nil
}
