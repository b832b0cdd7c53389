package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/moodtunes/internal/music"
)

// Search returns tracks matching term. A blank term returns an empty list
// without a request; zero matches is an empty list, not an error.
// limit is clamped to 1..MaxSearchLimit, defaulting to DefaultLimit.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]music.Track, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []music.Track{}, nil
	}

	tracks, err := c.searchTracks(ctx, term, clampLimit(limit, MaxSearchLimit))
	if err != nil {
		return nil, &CatalogError{Op: "search", Err: err}
	}
	return tracks, nil
}

// TopCharts returns the current popular tracks.
func (c *Client) TopCharts(ctx context.Context) ([]music.Track, error) {
	tracks, err := c.searchTracks(ctx, TopChartsTerm, DefaultLimit)
	if err != nil {
		return nil, &CatalogError{Op: "charts", Err: err}
	}
	return tracks, nil
}

func (c *Client) searchTracks(ctx context.Context, term string, limit int) ([]music.Track, error) {
	res, err := c.api.Search(ctx, term, spotify.SearchTypeTrack, c.requestOpts(spotify.Limit(limit))...)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", term, err)
	}
	if res == nil || res.Tracks == nil {
		return []music.Track{}, nil
	}
	return fromFullTracks(res.Tracks.Tracks), nil
}
