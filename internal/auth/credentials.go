package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// DefaultExpirySkew is subtracted from a credential's expiry so requests
// never go out with a token that expires in flight.
const DefaultExpirySkew = 30 * time.Second

// TokenFetcher obtains a fresh app credential.
// *clientcredentials.Config satisfies it.
type TokenFetcher interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// CredentialOption configures a CredentialCache.
type CredentialOption func(*CredentialCache)

// WithTokenFile persists every fetched credential to f and seeds the
// cache from it on construction.
func WithTokenFile(f *TokenFile) CredentialOption {
	return func(c *CredentialCache) {
		c.file = f
	}
}

// WithExpirySkew overrides DefaultExpirySkew.
func WithExpirySkew(d time.Duration) CredentialOption {
	return func(c *CredentialCache) {
		c.skew = d
	}
}

// WithCredentialLogger sets the logger used for persistence warnings.
func WithCredentialLogger(l *zap.Logger) CredentialOption {
	return func(c *CredentialCache) {
		c.logger = l
	}
}

// CredentialCache holds the app bearer credential. It is reused until it
// expires; concurrent callers that find it expired share one fetch.
type CredentialCache struct {
	fetcher TokenFetcher
	file    *TokenFile
	skew    time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token

	group singleflight.Group
}

// NewCredentialCache creates a cache that fetches credentials from fetcher.
func NewCredentialCache(fetcher TokenFetcher, opts ...CredentialOption) *CredentialCache {
	c := &CredentialCache{
		fetcher: fetcher,
		skew:    DefaultExpirySkew,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.file != nil {
		tok, err := c.file.Load()
		if err != nil {
			c.logger.Warn("ignoring stored credential", zap.String("path", c.file.Path()), zap.Error(err))
		} else if tok != nil {
			c.token = tok
		}
	}

	return c
}

// NewClientCredentials returns a cache backed by the client-credentials
// grant against tokenURL.
func NewClientCredentials(clientID, clientSecret, tokenURL string, opts ...CredentialOption) (*CredentialCache, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return NewCredentialCache(cfg, opts...), nil
}

// Get returns a valid credential, fetching a new one if needed.
func (c *CredentialCache) Get(ctx context.Context) (*oauth2.Token, error) {
	if tok := c.cached(); tok != nil {
		return tok, nil
	}

	v, err, _ := c.group.Do("credential", func() (any, error) {
		// A caller that lost the race may arrive after the refresh finished.
		if tok := c.cached(); tok != nil {
			return tok, nil
		}

		// Shared by every waiter, so one caller's cancellation must not fail the rest.
		tok, err := c.fetcher.Token(context.WithoutCancel(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetching app credential: %w", err)
		}

		c.mu.Lock()
		c.token = tok
		c.mu.Unlock()

		if c.file != nil {
			if err := c.file.Save(tok); err != nil {
				c.logger.Warn("persisting credential failed", zap.Error(err))
			}
		}
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// Invalidate drops the cached credential so the next Get fetches a new one.
// Used when the API rejects a credential before its advertised expiry.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()

	// A rejected credential must not come back on the next start.
	if c.file != nil {
		if err := c.file.Delete(); err != nil {
			c.logger.Warn("removing rejected credential failed", zap.Error(err))
		}
	}
}

func (c *CredentialCache) cached() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil || c.token.AccessToken == "" {
		return nil
	}
	if !c.token.Expiry.IsZero() && !c.now().Add(c.skew).Before(c.token.Expiry) {
		return nil
	}
	return c.token
}
