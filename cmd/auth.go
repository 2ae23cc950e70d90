package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/melodyhue/internal/server"
	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/urfave/cli/v3"
)

type authStatus struct {
	Configured   bool      `json:"configured"`
	Enabled      bool      `json:"enabled"`
	UserGrant    bool      `json:"user_grant"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	TokenFile    string    `json:"token_file,omitempty"`
	RedirectURI  string    `json:"redirect_uri"`
	FallbackHex  string    `json:"fallback"`
	HistoryPath  string    `json:"history_db,omitempty"`
	ConfigSource string    `json:"config"`
}

func (r *Runner) requireCredentials() error {
	if !r.config.Spotify.Configured() {
		return fmt.Errorf("%w: set spotify.client_id and spotify.client_secret in %s or SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET",
			shared.ErrNotConfigured, r.configPath)
	}
	return nil
}

// AuthLogin performs OAuth2 authorization for Spotify.
//
// Starts a local HTTP server on the redirect URI, opens the browser for user consent and exchanges
// the returned code. The refresh token is written back to the config file through the rotation listener.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireCredentials(); err != nil {
		return err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state: %w", err)
	}

	integration := r.spotify(ctx)
	authURL := integration.AuthorizationURL(state)
	if authURL == "" {
		return fmt.Errorf("%w: spotify.redirect_uri is empty", shared.ErrInvalidConfig)
	}

	redirect := r.config.Spotify.RedirectURI
	handler := server.NewOAuthHandler(integration, state, redirect)

	router := server.NewBasicRouter()
	router.Use(server.RecoveryMiddleware(r.logger), server.LoggingMiddleware(r.logger))
	router.Handler(handler)

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	ready := make(chan string, 1)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx, server.ListenAddr(redirect, r.config.Server.Addr()), router, r.logger, ready)
	}()

	select {
	case addr := <-ready:
		r.logger.Info("waiting for spotify callback", "addr", addr)
	case err := <-serveErr:
		return fmt.Errorf("failed to start callback server: %w", err)
	}

	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to authorize:\n\n%s\n\n", authURL)
	} else if err := r.openBrowser(authURL); err != nil {
		r.logger.Warn("could not open browser", "error", err)
		r.writePlain("Open this URL to authorize:\n\n%s\n\n", authURL)
	}

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case <-ctx.Done():
		cancel()
		<-serveErr
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: no callback within %s", shared.ErrTimeout, cmd.Duration("timeout"))
		}
		return ctx.Err()
	}

	cancel()
	if err := <-serveErr; err != nil {
		r.logger.Warn("callback server shutdown", "error", err)
	}

	if err := result.Error(); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	if integration.Credentials().RefreshToken != "" {
		r.writePlain("✓ Refresh token saved to %s\n", r.configPath)
	}
	r.writePlain("\nYou can now use: melodyhue now\n")
	return nil
}

// AuthURL prints the consent URL for completing the flow by hand.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireCredentials(); err != nil {
		return err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state: %w", err)
	}

	authURL := r.spotify(ctx).AuthorizationURL(state)
	if authURL == "" {
		return fmt.Errorf("%w: spotify.redirect_uri is empty", shared.ErrInvalidConfig)
	}
	return r.writePlain("%s\n", authURL)
}

// AuthStatus reports what the token store holds after acquisition.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	integration := r.spotify(ctx)
	creds := integration.Credentials()

	status := authStatus{
		Configured:   r.config.Spotify.Configured(),
		Enabled:      integration.IsEnabled(),
		UserGrant:    creds.RefreshToken != "",
		ExpiresAt:    creds.ExpiresAt,
		RedirectURI:  r.config.Spotify.RedirectURI,
		FallbackHex:  integration.Fallback().Hex(),
		ConfigSource: r.configPath,
	}
	if r.config.Persistence.Enabled {
		status.TokenFile = r.config.Persistence.WritePath()
	}
	if r.config.Database.History {
		status.HistoryPath = r.config.Database.Path
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlainHeader("Spotify")
	r.writePlain("Credentials:  %s\n", check(status.Configured, "configured", "missing"))
	r.writePlain("User grant:   %s\n", check(status.UserGrant, "yes", "no (run `melodyhue auth login`)"))
	r.writePlain("Enabled:      %s\n", check(status.Enabled, "yes", "no"))
	if !status.ExpiresAt.IsZero() {
		r.writePlain("Token expires: %s\n", status.ExpiresAt.Local().Format(time.RFC1123))
	}
	if status.TokenFile != "" {
		r.writePlain("Token file:   %s\n", status.TokenFile)
	}
	r.writePlain("Redirect URI: %s\n", status.RedirectURI)
	r.writePlain("Fallback:     %s\n", status.FallbackHex)
	return nil
}

// AuthLogout forgets tokens in memory, on disk and in the config file.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	integration := r.spotify(ctx)
	if !integration.Logout() {
		return fmt.Errorf("failed to remove persisted tokens")
	}

	if r.config.Spotify.RefreshToken != "" {
		r.config.Spotify.RefreshToken = ""
		if err := r.updateConfigFile(func(c *shared.Config) { c.Spotify.RefreshToken = "" }); err != nil {
			r.logger.Warn("failed to clear refresh token from config", "error", err)
		}
	}

	return r.writePlain("✓ Logged out of Spotify\n")
}

func check(ok bool, yes, no string) string {
	if ok {
		return "✓ " + yes
	}
	return "✗ " + no
}
