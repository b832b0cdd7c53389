// Package auth holds the Spotify credentials used by the service: the
// app-level client-credentials token shared by catalog calls, and the
// authorization-code flow that signs users in through the browser.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

var (
	// ErrMissingCredentials is returned when SPOTIFY_ID or SPOTIFY_SECRET is not set.
	ErrMissingCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrAccessDenied is returned when the provider redirects back with an error.
	ErrAccessDenied = errors.New("authorization denied")
)

// AuthExchangeError reports a failed authorization-code exchange.
// No token is retained when it is returned.
type AuthExchangeError struct {
	Reason string // "state", "denied" or "exchange"
	Err    error
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("auth exchange (%s): %v", e.Reason, e.Err)
}

func (e *AuthExchangeError) Unwrap() error {
	return e.Err
}

// UserAuth runs the authorization-code flow for signing users in.
type UserAuth struct {
	auth *spotifyauth.Authenticator
}

// NewUserAuth creates a UserAuth for the given app credentials.
// Returns ErrMissingCredentials if the id or secret is empty.
func NewUserAuth(clientID, clientSecret, redirectURL string) (*UserAuth, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(clientID),
		spotifyauth.WithClientSecret(clientSecret),
		spotifyauth.WithRedirectURL(redirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopeUserReadEmail,
			spotifyauth.ScopeUserLibraryRead,
		),
	)

	return &UserAuth{auth: auth}, nil
}

// AuthURL returns the provider URL the browser is sent to.
func (a *UserAuth) AuthURL(state string) string {
	return a.auth.AuthURL(state)
}

// Exchange validates the callback request against state and trades its
// code for a token. Every failure is an *AuthExchangeError.
func (a *UserAuth) Exchange(ctx context.Context, state string, r *http.Request) (*oauth2.Token, error) {
	q := r.URL.Query()

	if state == "" || q.Get("state") != state {
		return nil, &AuthExchangeError{Reason: "state", Err: ErrStateMismatch}
	}

	if errMsg := q.Get("error"); errMsg != "" {
		return nil, &AuthExchangeError{Reason: "denied", Err: fmt.Errorf("%w: %s", ErrAccessDenied, errMsg)}
	}

	token, err := a.auth.Token(ctx, state, r)
	if err != nil {
		return nil, &AuthExchangeError{Reason: "exchange", Err: err}
	}

	return token, nil
}

// Client returns a Spotify client acting on behalf of the signed-in user.
// The underlying oauth2 client refreshes the token as needed.
func (a *UserAuth) Client(ctx context.Context, token *oauth2.Token) *spotify.Client {
	return spotify.New(a.auth.Client(ctx, token), spotify.WithRetry(true))
}

// Profile identifies a signed-in user.
type Profile struct {
	ID          string
	DisplayName string
	Email       string
}

// CurrentUser fetches the profile of the user that token belongs to.
func (a *UserAuth) CurrentUser(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	user, err := a.Client(ctx, token).CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}

	name := user.DisplayName
	if name == "" {
		name = string(user.ID)
	}
	return &Profile{ID: string(user.ID), DisplayName: name, Email: user.Email}, nil
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
