package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	StravaAuthURL  = "https://www.strava.com/oauth/authorize"
	StravaTokenURL = "https://www.strava.com/oauth/token"

	// refreshBuffer refreshes tokens slightly before they expire.
	refreshBuffer = 5 * time.Minute
)

// Credentials are the OAuth client and the long-lived refresh token of the
// single account the pipeline uploads to.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// TokenURL overrides the Strava token endpoint, mainly for tests.
	TokenURL string
}

// Configured reports whether enough is set to obtain tokens.
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

func (c Credentials) config() *oauth2.Config {
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = StravaTokenURL
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   StravaAuthURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// RefreshingTokenSource refreshes the access token when it is about to expire
// and reports every new token to onRefresh. It is safe for concurrent use.
type RefreshingTokenSource struct {
	config    *oauth2.Config
	token     *oauth2.Token
	onRefresh func(*oauth2.Token) error
	mu        sync.Mutex
}

// NewTokenSource creates a token source from the stored refresh token. The
// first call to Token always performs a refresh.
func NewTokenSource(creds Credentials, onRefresh func(*oauth2.Token) error) *RefreshingTokenSource {
	return &RefreshingTokenSource{
		config:    creds.config(),
		token:     &oauth2.Token{RefreshToken: creds.RefreshToken},
		onRefresh: onRefresh,
	}
}

// Token returns a valid token, refreshing if necessary.
func (s *RefreshingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.AccessToken != "" && time.Until(s.token.Expiry) > refreshBuffer {
		return s.token, nil
	}

	// Expire the cached token so the underlying source refreshes it
	stale := *s.token
	stale.Expiry = time.Now().Add(-time.Minute)
	newToken, err := s.config.TokenSource(context.Background(), &stale).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh strava token: %w", err)
	}

	if newToken.RefreshToken != "" && newToken.RefreshToken != s.token.RefreshToken {
		slog.Warn("Strava refresh token rotated")
	}
	if s.onRefresh != nil {
		if err := s.onRefresh(newToken); err != nil {
			return nil, err
		}
	}

	s.token = newToken
	return newToken, nil
}

// NewClient creates an HTTP client that authenticates every request with src.
func NewClient(ctx context.Context, src oauth2.TokenSource) *http.Client {
	return oauth2.NewClient(ctx, src)
}
