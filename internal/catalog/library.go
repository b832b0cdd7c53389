package catalog

import (
	"context"
	"errors"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/moodtunes/internal/music"
)

// savedPageSize is the largest page the saved-tracks endpoint returns.
const savedPageSize = 50

// SavedTracks pages through the library of the user api acts for and
// returns up to limit tracks, most recently saved first. limit <= 0 means all.
// api must carry a user token with the user-library-read scope.
func SavedTracks(ctx context.Context, api *spotify.Client, limit int) ([]music.Track, error) {
	page, err := api.CurrentUsersTracks(ctx, spotify.Limit(savedPageSize))
	if err != nil {
		return nil, &CatalogError{Op: "library", Err: err}
	}

	var tracks []music.Track
	for {
		for _, saved := range page.Tracks {
			if saved.ID == "" {
				continue
			}
			tracks = append(tracks, toTrack(saved.SimpleTrack, saved.Album))
			if limit > 0 && len(tracks) >= limit {
				return tracks, nil
			}
		}

		err = api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, &CatalogError{Op: "library", Err: err}
		}
	}

	if tracks == nil {
		tracks = []music.Track{}
	}
	return tracks, nil
}
