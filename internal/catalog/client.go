// Package catalog is the track repository: it turns search terms and moods
// into music.Track lists using the Spotify Web API.
package catalog

import (
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/auth"
	"github.com/justestif/moodtunes/internal/music"
)

const (
	// DefaultLimit is the page size used when callers pass no limit.
	DefaultLimit = 10

	// MaxSearchLimit is the largest page the search endpoint accepts.
	MaxSearchLimit = 50

	// MaxRecommended caps the tracks returned for a mood.
	MaxRecommended = 10

	// TopChartsTerm is the search used for the charts view.
	TopChartsTerm = "top 40 hits"

	maxTracksPerRequest = 100
)

// Config holds the settings for the underlying API client.
type Config struct {
	BaseURL string        // Overrides the public API, e.g. for tests
	Timeout time.Duration // Per-request timeout; zero means none
	Retry   bool          // Wait and retry when rate limited
	Market  string        // ISO country code; affects preview availability
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMarket restricts results to a market.
func WithMarket(market string) Option {
	return func(c *Client) {
		c.market = market
	}
}

// Client wraps the Spotify API client with mood-aware queries.
type Client struct {
	api      *spotify.Client
	profiles music.Profiles
	logger   *zap.Logger
	market   string
}

// New creates a catalog client. The API client should already carry
// credentials; see NewAPI.
func New(api *spotify.Client, profiles music.Profiles, opts ...Option) *Client {
	if profiles == nil {
		profiles = music.DefaultProfiles()
	}
	c := &Client{
		api:      api,
		profiles: profiles,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewAPI builds a Spotify API client that authenticates every request
// with the app credential held by creds.
func NewAPI(creds *auth.CredentialCache, cfg Config) *spotify.Client {
	httpClient := auth.NewHTTPClient(creds, &http.Client{Timeout: cfg.Timeout})

	opts := []spotify.ClientOption{spotify.WithRetry(cfg.Retry)}
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}
	return spotify.New(httpClient, opts...)
}

// Profiles returns the mood table the client queries with.
func (c *Client) Profiles() music.Profiles {
	return c.profiles
}

func (c *Client) requestOpts(opts ...spotify.RequestOption) []spotify.RequestOption {
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}
	return opts
}

func clampLimit(limit, upper int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, upper)
}
