// Command moodtunes runs the MoodTunes web service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/auth"
	"github.com/justestif/moodtunes/internal/catalog"
	"github.com/justestif/moodtunes/internal/config"
	"github.com/justestif/moodtunes/internal/db"
	"github.com/justestif/moodtunes/internal/insights"
	"github.com/justestif/moodtunes/internal/library"
	"github.com/justestif/moodtunes/internal/logging"
	"github.com/justestif/moodtunes/internal/session"
	"github.com/justestif/moodtunes/internal/sqlite"
	"github.com/justestif/moodtunes/internal/store"
	"github.com/justestif/moodtunes/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "", "path to a TOML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// App credential for catalog requests
	var credOpts []auth.CredentialOption
	credOpts = append(credOpts, auth.WithCredentialLogger(logger))
	if cfg.Spotify.CredentialFile != "" {
		credOpts = append(credOpts, auth.WithTokenFile(auth.NewTokenFile(cfg.Spotify.CredentialFile)))
	}
	creds, err := auth.NewClientCredentials(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.TokenURL, credOpts...)
	if err != nil {
		return err
	}

	api := catalog.NewAPI(creds, catalog.Config{
		BaseURL: cfg.Catalog.BaseURL,
		Timeout: cfg.Catalog.Timeout,
		Retry:   cfg.Catalog.Retry,
		Market:  cfg.Catalog.Market,
	})
	tracks := catalog.New(api, cfg.Profiles(),
		catalog.WithLogger(logger.Named("catalog")),
		catalog.WithMarket(cfg.Catalog.Market))
	profiles := tracks.Profiles()

	userAuth, err := auth.NewUserAuth(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURL)
	if err != nil {
		return err
	}

	// Storage
	var (
		backend  store.Backend
		sessions web.SessionManager
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		database, err := db.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()

		if n, err := database.Sessions().DeleteExpired(ctx); err != nil {
			logger.Warn("pruning expired sessions failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned expired sessions", zap.Int64("count", n))
		}

		backend = database.Collections()
		sessions = web.NewDBSessionStore(database, cfg.Server.SessionTTL, logger.Named("sessions"))
	case config.DriverSQLite:
		sb, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening sqlite store: %w", err)
		}
		defer sb.Close()

		backend = sb
		sessions = web.NewSessionStore(cfg.Server.SessionTTL)
	case config.DriverFile:
		fb, err := store.NewFileBackend(cfg.Storage.Dir)
		if err != nil {
			return fmt.Errorf("opening storage dir: %w", err)
		}
		logger.Info("storing collections as files", zap.String("dir", fb.Dir()))
		backend = fb
		sessions = web.NewSessionStore(cfg.Server.SessionTTL)
	default:
		backend = store.NewMemoryBackend()
		sessions = web.NewSessionStore(cfg.Server.SessionTTL)
	}
	logger.Info("storage ready", zap.String("driver", cfg.Storage.Driver))

	registry := session.NewRegistry(tracks, backend, logger.Named("session"))
	suggester := insights.NewSuggester(tracks, profiles, insights.Config{
		NumClusters:    cfg.Insights.Clusters,
		MinClusterSize: cfg.Insights.MinClusterSize,
	}, logger.Named("insights"))

	// Warm the app credential so bad client credentials fail at startup.
	warmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := creds.Get(warmCtx); err != nil {
		logger.Warn("fetching app credential failed; catalog requests will retry", zap.Error(err))
	}

	server := web.NewServer(web.ServerConfig{
		Addr:          cfg.Server.Addr,
		SecureCookies: cfg.Server.SecureCookies,
		SessionTTL:    cfg.Server.SessionTTL,
	}, web.Dependencies{
		Auth:      userAuth,
		Sessions:  sessions,
		Registry:  registry,
		Suggester: suggester,
		Importer:  library.New(library.WithLogger(logger.Named("library"))),
		Profiles:  profiles,
		Logger:    logger.Named("web"),
	})

	return server.Run()
}
