package music

import (
	"fmt"
	"math"
)

// Features holds the audio features used to describe a mood.
// Values are in the 0..1 range reported by the Spotify audio-features API.
type Features struct {
	Energy       float64 `json:"energy"`
	Valence      float64 `json:"valence"`
	Danceability float64 `json:"danceability"`
	Acousticness float64 `json:"acousticness"`
}

// Vector returns the features in a fixed order for distance computations.
func (f Features) Vector() []float64 {
	return []float64{f.Energy, f.Valence, f.Danceability, f.Acousticness}
}

// Distance returns the euclidean distance between two feature sets.
func (f Features) Distance(other Features) float64 {
	a, b := f.Vector(), other.Vector()
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Profile maps a mood to catalog query parameters.
type Profile struct {
	Label      string   // Display name
	Genres     []string // Recommendation seed genres (max 5)
	Targets    Features // Target audio features for the recommendation query
	PlaylistID string   // Curated playlist used when recommendations fail
	SearchTerm string   // Used as fallback when PlaylistID is empty
}

// Profiles is the mood to profile table used by the catalog client.
type Profiles map[Mood]Profile

// DefaultProfiles returns the built-in profile table.
//
// Targets follow the energy/valence quadrants:
//   - High Energy + High Valence: happy, energetic
//   - Low Energy  + High Valence: calm, romantic
//   - Low Energy  + Low Valence:  sad, melancholy
//   - night and discovery sit near the middle
func DefaultProfiles() Profiles {
	return Profiles{
		Happy: {
			Label:      "Happy",
			Genres:     []string{"pop", "happy", "dance"},
			Targets:    Features{Energy: 0.8, Valence: 0.9, Danceability: 0.7, Acousticness: 0.2},
			PlaylistID: "37i9dQZF1DXdPec7aLTmlC",
			SearchTerm: "happy upbeat pop",
		},
		Sad: {
			Label:      "Sad",
			Genres:     []string{"sad", "blues", "acoustic"},
			Targets:    Features{Energy: 0.3, Valence: 0.15, Danceability: 0.35, Acousticness: 0.7},
			PlaylistID: "37i9dQZF1DX7qK8ma5wgG1",
			SearchTerm: "sad emotional ballad",
		},
		Energetic: {
			Label:      "Energetic",
			Genres:     []string{"rock", "work-out", "edm"},
			Targets:    Features{Energy: 0.95, Valence: 0.6, Danceability: 0.65, Acousticness: 0.05},
			PlaylistID: "37i9dQZF1DX76Wlfdnj7AP",
			SearchTerm: "energetic workout rock",
		},
		Romantic: {
			Label:      "Romantic",
			Genres:     []string{"r-n-b", "romance", "soul"},
			Targets:    Features{Energy: 0.45, Valence: 0.6, Danceability: 0.6, Acousticness: 0.45},
			PlaylistID: "37i9dQZF1DX50QitC6Oqtn",
			SearchTerm: "love songs romantic",
		},
		Calm: {
			Label:      "Calm",
			Genres:     []string{"ambient", "chill", "piano"},
			Targets:    Features{Energy: 0.2, Valence: 0.55, Danceability: 0.3, Acousticness: 0.85},
			PlaylistID: "37i9dQZF1DX4sWSpwq3LiO",
			SearchTerm: "relaxing calm ambient",
		},
		Melancholy: {
			Label:      "Melancholy",
			Genres:     []string{"indie", "sad", "singer-songwriter"},
			Targets:    Features{Energy: 0.4, Valence: 0.25, Danceability: 0.4, Acousticness: 0.55},
			PlaylistID: "37i9dQZF1DWVV27DiNWxkR",
			SearchTerm: "melancholy indie",
		},
		Night: {
			Label:      "Night",
			Genres:     []string{"electronic", "chill", "deep-house"},
			Targets:    Features{Energy: 0.5, Valence: 0.4, Danceability: 0.7, Acousticness: 0.2},
			PlaylistID: "37i9dQZF1DX6VdMW310YC7",
			SearchTerm: "night chill electronic",
		},
		Discovery: {
			Label:      "Discover",
			Genres:     []string{"pop", "indie", "hip-hop"},
			Targets:    Features{Energy: 0.6, Valence: 0.5, Danceability: 0.6, Acousticness: 0.3},
			PlaylistID: "37i9dQZF1DXcBWIGoYBM5M",
			SearchTerm: "top hits",
		},
	}
}

// Lookup returns the profile for mood.
func (p Profiles) Lookup(mood Mood) (Profile, error) {
	profile, ok := p[mood]
	if !ok {
		return Profile{}, fmt.Errorf("%w: no profile for %q", ErrUnknownMood, mood)
	}
	return profile, nil
}

// Nearest returns the mood whose target features are closest to f.
// Discovery is never returned since it has no emotional target of its own.
func (p Profiles) Nearest(f Features) Mood {
	best := Mood("")
	bestDist := math.MaxFloat64
	for _, mood := range AllMoods {
		if mood == Discovery {
			continue
		}
		profile, ok := p[mood]
		if !ok {
			continue
		}
		if d := f.Distance(profile.Targets); d < bestDist {
			best, bestDist = mood, d
		}
	}
	return best
}
