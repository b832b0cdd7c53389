// Package config loads the service configuration from defaults, an
// optional TOML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/justestif/moodtunes/internal/auth"
	"github.com/justestif/moodtunes/internal/music"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig          `mapstructure:"server"`
	Spotify  SpotifyConfig         `mapstructure:"spotify"`
	Catalog  CatalogConfig         `mapstructure:"catalog"`
	Storage  StorageConfig         `mapstructure:"storage"`
	Log      LogConfig             `mapstructure:"log"`
	Insights InsightsConfig        `mapstructure:"insights"`
	Moods    map[string]MoodConfig `mapstructure:"moods"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
}

// SpotifyConfig contains app credentials and OAuth endpoints
type SpotifyConfig struct {
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	RedirectURL    string `mapstructure:"redirect_url"`
	TokenURL       string `mapstructure:"token_url"`
	CredentialFile string `mapstructure:"credential_file"` // Empty disables persistence
}

// CatalogConfig contains Web API client settings
type CatalogConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retry   bool          `mapstructure:"retry"`
	Market  string        `mapstructure:"market"`
}

// StorageConfig selects where liked songs and history are kept
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	Dir         string `mapstructure:"dir"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	DatabaseURL string `mapstructure:"database_url"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // Empty logs to stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// InsightsConfig contains mood suggestion settings
type InsightsConfig struct {
	Clusters       int `mapstructure:"clusters"`
	MinClusterSize int `mapstructure:"min_cluster_size"`
}

// MoodConfig overrides parts of a built-in mood profile. Unset fields keep
// their defaults.
type MoodConfig struct {
	Label        string   `mapstructure:"label"`
	Genres       []string `mapstructure:"genres"`
	PlaylistID   string   `mapstructure:"playlist_id"`
	SearchTerm   string   `mapstructure:"search_term"`
	Energy       *float64 `mapstructure:"energy"`
	Valence      *float64 `mapstructure:"valence"`
	Danceability *float64 `mapstructure:"danceability"`
	Acousticness *float64 `mapstructure:"acousticness"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:       "127.0.0.1:8080",
			SessionTTL: 7 * 24 * time.Hour,
		},
		Spotify: SpotifyConfig{
			RedirectURL:    "http://127.0.0.1:8080/callback",
			TokenURL:       "https://accounts.spotify.com/api/token",
			CredentialFile: defaultCredentialFile(),
		},
		Catalog: CatalogConfig{
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     DriverFile,
			Dir:        "./data",
			SQLitePath: "./data/moodtunes.db",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Insights: InsightsConfig{
			Clusters:       3,
			MinClusterSize: 2,
		},
	}
}

// defaultCredentialFile is the credential path in the user config
// directory, or empty when there is none.
func defaultCredentialFile() string {
	f, err := auth.DefaultTokenFile()
	if err != nil {
		return ""
	}
	return f.Path()
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return auth.ErrMissingCredentials
	}

	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the file driver")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("storage.database_url is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	for name := range c.Moods {
		if _, err := music.ParseMood(name); err != nil {
			return fmt.Errorf("moods.%s: %w", name, err)
		}
	}
	return nil
}

// Profiles returns the built-in mood profiles with the configured
// overrides applied.
func (c *Config) Profiles() music.Profiles {
	profiles := music.DefaultProfiles()
	for name, o := range c.Moods {
		mood, err := music.ParseMood(name)
		if err != nil {
			continue
		}
		p := profiles[mood]
		if o.Label != "" {
			p.Label = o.Label
		}
		if len(o.Genres) > 0 {
			p.Genres = o.Genres
		}
		if o.PlaylistID != "" {
			p.PlaylistID = o.PlaylistID
		}
		if o.SearchTerm != "" {
			p.SearchTerm = o.SearchTerm
		}
		if o.Energy != nil {
			p.Targets.Energy = *o.Energy
		}
		if o.Valence != nil {
			p.Targets.Valence = *o.Valence
		}
		if o.Danceability != nil {
			p.Targets.Danceability = *o.Danceability
		}
		if o.Acousticness != nil {
			p.Targets.Acousticness = *o.Acousticness
		}
		profiles[mood] = p
	}
	return profiles
}
