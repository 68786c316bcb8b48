package services

import (
	"context"

	"golang.org/x/oauth2"
)

// Service is implemented by every external API client.
type Service interface {
	// Name returns the name of the service (e.g., "Spotify", "Last.fm")
	Name() string
}

// OAuthService extends [Service] for providers using the OAuth2 authorization code flow.
type OAuthService interface {
	Service

	// GetAuthURL returns the URL the user visits to grant access.
	GetAuthURL(state string) string

	// GetOAuthConfig returns the OAuth2 configuration used for code exchange.
	GetOAuthConfig() *oauth2.Config

	// OAuthenticate installs a token. Expired access tokens are refreshed automatically.
	OAuthenticate(ctx context.Context, token *oauth2.Token) error
}
