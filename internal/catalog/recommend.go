package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/music"
)

// Recommend returns up to limit (at most MaxRecommended) tracks for mood,
// each tagged with mood.
//
// The recommendations endpoint is queried first with the profile's seed
// genres and target features. If it fails or returns nothing, the
// profile's curated playlist is read instead, or a term search when the
// profile has no playlist. A *CatalogError is returned only when both
// queries fail.
func (c *Client) Recommend(ctx context.Context, mood music.Mood, limit int) ([]music.Track, error) {
	profile, err := c.profiles.Lookup(mood)
	if err != nil {
		return nil, &CatalogError{Op: "recommend", Mood: mood, Err: err}
	}
	limit = clampLimit(limit, MaxRecommended)

	tracks, recErr := c.recommendations(ctx, profile, limit)
	if recErr == nil && len(tracks) == 0 {
		recErr = errNoRecommendations
	}
	if recErr == nil {
		return music.WithMood(tracks, mood), nil
	}

	c.logger.Warn("recommendations unavailable, using fallback",
		zap.String("mood", mood.String()),
		zap.Int("status", StatusCode(recErr)),
		zap.Error(recErr))

	tracks, fbErr := c.fallback(ctx, profile, limit)
	if fbErr != nil {
		return nil, &CatalogError{
			Op:   "recommend",
			Mood: mood,
			Err: errors.Join(
				fmt.Errorf("recommendations: %w", recErr),
				fmt.Errorf("fallback: %w", fbErr),
			),
		}
	}
	if len(tracks) == 0 {
		c.logger.Warn("fallback returned no tracks", zap.String("mood", mood.String()))
	}

	return music.WithMood(tracks, mood), nil
}

func (c *Client) recommendations(ctx context.Context, p music.Profile, limit int) ([]music.Track, error) {
	seeds := spotify.Seeds{Genres: p.Genres}
	attrs := spotify.NewTrackAttributes().
		TargetEnergy(p.Targets.Energy).
		TargetValence(p.Targets.Valence).
		TargetDanceability(p.Targets.Danceability).
		TargetAcousticness(p.Targets.Acousticness)

	recs, err := c.api.GetRecommendations(ctx, seeds, attrs, c.requestOpts(spotify.Limit(limit))...)
	if err != nil {
		return nil, err
	}

	tracks := make([]music.Track, 0, len(recs.Tracks))
	for _, st := range recs.Tracks {
		if st.ID == "" {
			continue
		}
		tracks = append(tracks, toTrack(st, st.Album))
	}
	return truncate(tracks, limit), nil
}

func (c *Client) fallback(ctx context.Context, p music.Profile, limit int) ([]music.Track, error) {
	if p.PlaylistID != "" {
		return c.playlistTracks(ctx, p.PlaylistID, limit)
	}
	if p.SearchTerm != "" {
		return c.searchTracks(ctx, p.SearchTerm, limit)
	}
	return nil, errors.New("profile has no playlist or search term")
}

func (c *Client) playlistTracks(ctx context.Context, playlistID string, limit int) ([]music.Track, error) {
	page, err := c.api.GetPlaylistItems(ctx, spotify.ID(playlistID), c.requestOpts(spotify.Limit(limit))...)
	if err != nil {
		return nil, fmt.Errorf("reading playlist %s: %w", playlistID, err)
	}

	tracks := make([]music.Track, 0, len(page.Items))
	for _, item := range page.Items {
		// Episodes have no Track.
		ft := item.Track.Track
		if ft == nil || ft.ID == "" {
			continue
		}
		tracks = append(tracks, toTrack(ft.SimpleTrack, ft.Album))
	}
	return truncate(tracks, limit), nil
}

func truncate(tracks []music.Track, n int) []music.Track {
	if len(tracks) > n {
		return tracks[:n]
	}
	return tracks
}
