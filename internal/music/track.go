// Package music defines the domain types shared by the catalog client, the
// collections store and the playback controller.
package music

import (
	"encoding/json"
	"fmt"
)

// Track represents a song returned by the catalog.
// The JSON field names match the format persisted by earlier versions of the
// web client so existing liked/history payloads keep loading.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"` // Comma-separated artist names
	AlbumArt string `json:"albumArt"`
	Preview  string `json:"preview"` // Empty when the catalog has no preview clip
	Mood     Mood   `json:"mood,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// PlaceholderAlbumArt is used when the catalog returns no cover image.
const PlaceholderAlbumArt = "https://via.placeholder.com/150"

// Playable reports whether the track has a locally playable preview.
func (t Track) Playable() bool {
	return t.Preview != ""
}

// ExternalURL returns the link for listening to the full track on Spotify.
func (t Track) ExternalURL() string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", t.ID)
}

// MarshalJSON adds externalUrl to tracks without a preview, so clients can
// offer the full track on Spotify instead.
func (t Track) MarshalJSON() ([]byte, error) {
	type plain Track
	out := struct {
		plain
		ExternalURL string `json:"externalUrl,omitempty"`
	}{plain: plain(t)}
	if t.ID != "" && !t.Playable() {
		out.ExternalURL = t.ExternalURL()
	}
	return json.Marshal(out)
}

// IndexOf returns the position of the track with the given ID, or -1.
func IndexOf(tracks []Track, id string) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// WithMood returns a copy of tracks tagged with mood.
func WithMood(tracks []Track, mood Mood) []Track {
	tagged := make([]Track, len(tracks))
	for i, t := range tracks {
		t.Mood = mood
		tagged[i] = t
	}
	return tagged
}
