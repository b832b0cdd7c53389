// Package insights suggests moods from the tracks a user has liked.
//
// Liked tracks are grouped by audio-feature similarity with k-means; each
// group is matched to the mood whose target features are closest.
package insights

import (
	"context"
	"fmt"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/music"
)

// FeatureSource looks up audio features by track ID.
type FeatureSource interface {
	AudioFeatures(ctx context.Context, ids []string) (map[string]music.Features, error)
}

// Config holds clustering parameters.
type Config struct {
	NumClusters    int // Number of clusters to create (default: 3)
	MinClusterSize int // Smaller clusters are ignored (default: 2)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		NumClusters:    3,
		MinClusterSize: 2,
	}
}

// Suggestion is a mood that a group of liked tracks points to.
type Suggestion struct {
	Mood     music.Mood     `json:"mood"`
	Vibe     string         `json:"vibe"` // e.g. "Chill & Happy (Acoustic)"
	Centroid music.Features `json:"centroid"`
	Tracks   []music.Track  `json:"tracks"`
}

// Suggester turns liked tracks into mood suggestions.
type Suggester struct {
	source   FeatureSource
	profiles music.Profiles
	cfg      Config
	logger   *zap.Logger
}

// NewSuggester creates a Suggester. Zero config fields take defaults.
func NewSuggester(source FeatureSource, profiles music.Profiles, cfg Config, logger *zap.Logger) *Suggester {
	def := DefaultConfig()
	if cfg.NumClusters <= 0 {
		cfg.NumClusters = def.NumClusters
	}
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = def.MinClusterSize
	}
	if profiles == nil {
		profiles = music.DefaultProfiles()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suggester{source: source, profiles: profiles, cfg: cfg, logger: logger}
}

// trackObservation wraps a Track to implement clusters.Observation.
type trackObservation struct {
	track  music.Track
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// Suggest returns moods for liked, largest group first. Tracks without
// audio features are skipped. Groups that map to the same mood are merged.
func (s *Suggester) Suggest(ctx context.Context, liked []music.Track) ([]Suggestion, error) {
	if len(liked) == 0 {
		return []Suggestion{}, nil
	}

	ids := make([]string, len(liked))
	for i, t := range liked {
		ids[i] = t.ID
	}
	features, err := s.source.AudioFeatures(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching audio features: %w", err)
	}

	var obs clusters.Observations
	for _, t := range liked {
		f, ok := features[t.ID]
		if !ok {
			continue
		}
		obs = append(obs, trackObservation{track: t, coords: f.Vector()})
	}
	if len(obs) < s.cfg.MinClusterSize {
		return []Suggestion{}, nil
	}

	k := min(s.cfg.NumClusters, len(obs))
	result, err := kmeans.New().Partition(obs, k)
	if err != nil {
		return nil, fmt.Errorf("clustering %d tracks: %w", len(obs), err)
	}

	byMood := make(map[music.Mood]*Suggestion)
	for _, cluster := range result {
		if len(cluster.Observations) < s.cfg.MinClusterSize {
			continue
		}

		var tracks []music.Track
		for _, o := range cluster.Observations {
			if to, ok := o.(trackObservation); ok {
				tracks = append(tracks, to.track)
			}
		}

		// kmeans leaves Center at its last recentering, which may predate
		// the final assignment.
		center, err := cluster.Observations.Center()
		if err != nil {
			continue
		}
		centroid := toFeatures(center)
		mood := s.profiles.Nearest(centroid)
		if mood == "" {
			continue
		}

		if sg, ok := byMood[mood]; ok {
			sg.Centroid = weightedMean(sg.Centroid, len(sg.Tracks), centroid, len(tracks))
			sg.Tracks = append(sg.Tracks, tracks...)
			sg.Vibe = describe(sg.Centroid)
			continue
		}
		byMood[mood] = &Suggestion{
			Mood:     mood,
			Vibe:     describe(centroid),
			Centroid: centroid,
			Tracks:   tracks,
		}
	}

	out := make([]Suggestion, 0, len(byMood))
	for _, sg := range byMood {
		out = append(out, *sg)
	}
	slices.SortFunc(out, func(a, b Suggestion) int {
		if d := len(b.Tracks) - len(a.Tracks); d != 0 {
			return d
		}
		return slices.Index(music.AllMoods, a.Mood) - slices.Index(music.AllMoods, b.Mood)
	})

	s.logger.Debug("mood suggestions computed",
		zap.Int("liked", len(liked)),
		zap.Int("with_features", len(obs)),
		zap.Int("suggestions", len(out)))

	return out, nil
}

func toFeatures(c clusters.Coordinates) music.Features {
	return music.Features{
		Energy:       c[0],
		Valence:      c[1],
		Danceability: c[2],
		Acousticness: c[3],
	}
}

func weightedMean(a music.Features, na int, b music.Features, nb int) music.Features {
	wa, wb := float64(na), float64(nb)
	total := wa + wb
	mix := func(x, y float64) float64 { return (x*wa + y*wb) / total }
	return music.Features{
		Energy:       mix(a.Energy, b.Energy),
		Valence:      mix(a.Valence, b.Valence),
		Danceability: mix(a.Danceability, b.Danceability),
		Acousticness: mix(a.Acousticness, b.Acousticness),
	}
}
