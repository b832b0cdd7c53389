package insights

import "github.com/justestif/moodtunes/internal/music"

// describe names a feature centroid using a 2x2 energy/valence quadrant
// with an acousticness modifier.
//
// Quadrants:
//   - High Energy + High Valence = "Upbeat Party"
//   - High Energy + Low Valence  = "Intense & Dark"
//   - Low Energy  + High Valence = "Chill & Happy"
//   - Low Energy  + Low Valence  = "Reflective & Melancholy"
//
// Acousticness above 0.6 appends " (Acoustic)".
func describe(f music.Features) string {
	highEnergy := f.Energy > 0.6
	highValence := f.Valence > 0.5

	var name string
	switch {
	case highEnergy && highValence:
		name = "Upbeat Party"
	case highEnergy && !highValence:
		name = "Intense & Dark"
	case !highEnergy && highValence:
		name = "Chill & Happy"
	default:
		name = "Reflective & Melancholy"
	}

	if f.Acousticness > 0.6 {
		return name + " (Acoustic)"
	}
	return name
}
