package catalog

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/moodtunes/internal/music"
)

// AudioFeatures retrieves audio features for the given track IDs, keyed by ID.
// Requests are batched to 100 IDs per Spotify API limits. Tracks without
// features are absent from the result.
func (c *Client) AudioFeatures(ctx context.Context, ids []string) (map[string]music.Features, error) {
	result := make(map[string]music.Features, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	batchIDs := make([]spotify.ID, len(ids))
	for i, id := range ids {
		batchIDs[i] = spotify.ID(id)
	}

	total := len(batchIDs)
	for i := 0; i < total; i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, total)

		features, err := c.api.GetAudioFeatures(ctx, batchIDs[i:end]...)
		if err != nil {
			return nil, &CatalogError{
				Op:  "audio-features",
				Err: fmt.Errorf("batch %d-%d: %w", i+1, end, err),
			}
		}

		for _, f := range features {
			if f == nil {
				continue
			}
			result[f.ID.String()] = toFeatures(f)
		}
	}

	return result, nil
}

func toFeatures(f *spotify.AudioFeatures) music.Features {
	return music.Features{
		Energy:       float64(f.Energy),
		Valence:      float64(f.Valence),
		Danceability: float64(f.Danceability),
		Acousticness: float64(f.Acousticness),
	}
}
