package catalog

import (
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/moodtunes/internal/music"
)

// toTrack converts a Spotify track to music.Track.
// Artists are joined by ", "; the first album image is used as cover.
func toTrack(st spotify.SimpleTrack, album spotify.SimpleAlbum) music.Track {
	artists := make([]string, len(st.Artists))
	for i, a := range st.Artists {
		artists[i] = a.Name
	}

	art := music.PlaceholderAlbumArt
	if len(album.Images) > 0 && album.Images[0].URL != "" {
		art = album.Images[0].URL
	}

	return music.Track{
		ID:       st.ID.String(),
		Title:    st.Name,
		Artist:   strings.Join(artists, ", "),
		AlbumArt: art,
		Preview:  st.PreviewURL,
		URI:      string(st.URI),
	}
}

func fromFullTracks(in []spotify.FullTrack) []music.Track {
	tracks := make([]music.Track, 0, len(in))
	for _, ft := range in {
		if ft.ID == "" {
			continue
		}
		tracks = append(tracks, toTrack(ft.SimpleTrack, ft.Album))
	}
	return tracks
}
