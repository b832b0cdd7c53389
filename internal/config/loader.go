package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MOODTUNES_SERVER_ADDR.
const EnvPrefix = "MOODTUNES"

// Load reads the configuration and validates it.
//
// Sources, lowest precedence first: DefaultConfig, the TOML file at path
// (or moodtunes.toml in . or $HOME/.config/moodtunes when path is empty),
// then the environment. A .env file in the working directory is loaded
// into the environment first. SPOTIFY_ID, SPOTIFY_SECRET and DATABASE_URL
// are honored alongside their MOODTUNES_ forms.
func Load(path string) (*Config, error) {
	// A missing .env is fine; variables may come from the environment.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindings := map[string][]string{
		"spotify.client_id":     {"MOODTUNES_SPOTIFY_CLIENT_ID", "SPOTIFY_ID"},
		"spotify.client_secret": {"MOODTUNES_SPOTIFY_CLIENT_SECRET", "SPOTIFY_SECRET"},
		"storage.database_url":  {"MOODTUNES_STORAGE_DATABASE_URL", "DATABASE_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("moodtunes")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/moodtunes")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.secure_cookies", d.Server.SecureCookies)
	v.SetDefault("server.session_ttl", d.Server.SessionTTL)

	v.SetDefault("spotify.client_id", d.Spotify.ClientID)
	v.SetDefault("spotify.client_secret", d.Spotify.ClientSecret)
	v.SetDefault("spotify.redirect_url", d.Spotify.RedirectURL)
	v.SetDefault("spotify.token_url", d.Spotify.TokenURL)
	v.SetDefault("spotify.credential_file", d.Spotify.CredentialFile)

	v.SetDefault("catalog.base_url", d.Catalog.BaseURL)
	v.SetDefault("catalog.timeout", d.Catalog.Timeout)
	v.SetDefault("catalog.retry", d.Catalog.Retry)
	v.SetDefault("catalog.market", d.Catalog.Market)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.database_url", d.Storage.DatabaseURL)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("insights.clusters", d.Insights.Clusters)
	v.SetDefault("insights.min_cluster_size", d.Insights.MinClusterSize)
}
