package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/playgen/internal/server"
	"github.com/desertthunder/playgen/internal/services"
	"github.com/desertthunder/playgen/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// Auth performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService()
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, svc, "authorization", !cmd.Bool("no-browser"))
	if err != nil {
		return err
	}
	if err := r.storeToken(token); err != nil {
		return err
	}

	if err := svc.OAuthenticate(ctx, token); err != nil {
		return err
	}
	if user, err := svc.UserProfile(ctx); err != nil {
		r.logger.Warn("failed to fetch user profile", "error", err)
	} else {
		r.writePlainln("✓ Authorized as %s", user.DisplayName)
	}

	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now use: playgen playlist mentions --name \"My Mix\" --file picks.txt\n")
	return nil
}

// reauthorize repeats the OAuth flow for the current Spotify client and installs the new token.
func (r *Runner) reauthorize(ctx context.Context) error {
	token, err := r.doOAuth(ctx, r.spotify, "reauthorization", true)
	if err != nil {
		return err
	}
	if err := r.storeToken(token); err != nil {
		return err
	}
	return r.spotify.OAuthenticate(ctx, token)
}

// storeToken saves token into the config file, creating it from the template when needed.
func (r *Runner) storeToken(token *oauth2.Token) error {
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, oauthSrv services.OAuthService, prefix string, browser bool) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	handler := server.NewOAuthHandler(oauthSrv.GetOAuthConfig(), state)

	callback, err := server.NewCallbackServer(serverAddr, handler, r.logger)
	if err != nil {
		return nil, err
	}
	r.logger.Infof("started OAuth server for %s at %v", prefix, callback.Addr())

	authURL := oauthSrv.GetAuthURL(state)
	if browser {
		r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			browser = false
		}
	}
	if !browser {
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", authTimeout)
	return callback.Wait(ctx, authTimeout)
}
