package music

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMood is returned when a string does not name a Mood.
var ErrUnknownMood = errors.New("unknown mood")

// Mood is one of the fixed emotional categories driving recommendations.
type Mood string

const (
	Happy      Mood = "happy"
	Sad        Mood = "sad"
	Energetic  Mood = "energetic"
	Romantic   Mood = "romantic"
	Calm       Mood = "calm"
	Melancholy Mood = "melancholy"
	Night      Mood = "night"
	Discovery  Mood = "discovery"
)

// AllMoods lists every mood in display order.
var AllMoods = []Mood{Happy, Sad, Energetic, Romantic, Calm, Melancholy, Night, Discovery}

// ParseMood converts s to a Mood. Matching is case-insensitive.
func ParseMood(s string) (Mood, error) {
	m := Mood(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMood, s)
	}
	return m, nil
}

// Valid reports whether m is one of AllMoods.
func (m Mood) Valid() bool {
	for _, known := range AllMoods {
		if m == known {
			return true
		}
	}
	return false
}

func (m Mood) String() string {
	return string(m)
}
