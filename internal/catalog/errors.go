package catalog

import (
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/moodtunes/internal/music"
)

// ErrCatalog matches every *CatalogError via errors.Is.
var ErrCatalog = errors.New("catalog request failed")

// errNoRecommendations marks a successful but empty recommendations reply.
var errNoRecommendations = errors.New("no recommendations returned")

// CatalogError is returned when a catalog request fails after every
// fallback has been tried.
type CatalogError struct {
	Op   string     // "search", "recommend", "charts", "audio-features" or "library"
	Mood music.Mood // Set for recommend
	Err  error
}

func (e *CatalogError) Error() string {
	if e.Mood != "" {
		return fmt.Sprintf("catalog %s %s: %v", e.Op, e.Mood, e.Err)
	}
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrCatalog.
func (e *CatalogError) Is(target error) bool {
	return target == ErrCatalog
}

// StatusCode returns the HTTP status reported by the API for err,
// or 0 if err did not come from an API response.
func StatusCode(err error) int {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Status
	}
	return 0
}
