package twitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"tweet-publisher/storage"
)

// TokenURL is the OAuth 2.0 token endpoint.
const TokenURL = "https://api.x.com/2/oauth2/token"

// DefaultTokenKey is where the rotated refresh token is kept between runs.
const DefaultTokenKey = "state/x_refresh_token"

// TokenStore persists the refresh token. X invalidates a refresh token once it
// has been used, so the one returned by each refresh must survive the process.
type TokenStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
}

// Credentials for OAuth 2.0 user context.
// A RefreshToken enables automatic renewal; otherwise AccessToken is used as-is.
type Credentials struct {
	Store        TokenStore // Optional; without it a rotated token is lost on exit
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	TokenURL     string
	StoreKey     string
}

// NewHTTPClient returns an HTTP client that attaches a bearer token to every request.
// A refresh token saved in creds.Store takes precedence over creds.RefreshToken.
func NewHTTPClient(ctx context.Context, creds Credentials, timeout time.Duration, logger *slog.Logger) (*http.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := &http.Client{Timeout: timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	var ts oauth2.TokenSource
	switch {
	case creds.RefreshToken != "":
		if creds.ClientID == "" {
			return nil, errors.New("client id is required for token refresh")
		}
		tokenURL := creds.TokenURL
		if tokenURL == "" {
			tokenURL = TokenURL
		}
		key := creds.StoreKey
		if key == "" {
			key = DefaultTokenKey
		}

		refresh := creds.RefreshToken
		if creds.Store != nil {
			stored, err := loadRefreshToken(ctx, creds.Store, key)
			if err != nil {
				return nil, err
			}
			if stored != "" {
				logger.Info("Using stored refresh token", "key", key)
				refresh = stored
			}
		}

		cfg := &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: tokenURL,
				// Public clients send the client id in the form body.
				AuthStyle: authStyle(creds.ClientSecret),
			},
		}
		// No access token here: one without an expiry would be reused forever.
		ts = &rotatingTokenSource{
			base:    cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}),
			ctx:     context.WithoutCancel(ctx),
			store:   creds.Store,
			logger:  logger,
			key:     key,
			refresh: refresh,
		}
	case creds.AccessToken != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"})
	default:
		return nil, errors.New("an access token or a refresh token is required")
	}

	client := oauth2.NewClient(ctx, ts)
	client.Timeout = timeout
	return client, nil
}

func loadRefreshToken(ctx context.Context, store TokenStore, key string) (string, error) {
	data, err := store.Read(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// rotatingTokenSource saves every new refresh token the endpoint hands out.
type rotatingTokenSource struct {
	base    oauth2.TokenSource
	ctx     context.Context
	store   TokenStore
	logger  *slog.Logger
	key     string
	mu      sync.Mutex
	refresh string
}

func (s *rotatingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.RefreshToken == "" || tok.RefreshToken == s.refresh {
		return tok, nil
	}
	s.refresh = tok.RefreshToken

	if s.store == nil {
		s.logger.Error("X rotated the refresh token and no token store is configured, the next run will fail to authenticate")
		return tok, nil
	}
	if err := s.store.Write(s.ctx, s.key, []byte(tok.RefreshToken)); err != nil {
		// The token is still valid for this run.
		s.logger.Error("Failed to save rotated refresh token, the next run will fail to authenticate",
			"key", s.key, "error", err)
		return tok, nil
	}
	s.logger.Info("Rotated refresh token saved", "key", s.key)
	return tok, nil
}

func authStyle(secret string) oauth2.AuthStyle {
	if secret == "" {
		return oauth2.AuthStyleInParams
	}
	return oauth2.AuthStyleInHeader
}
