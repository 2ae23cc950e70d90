package tasks

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/services"
	"github.com/desertthunder/melodyhue/internal/shared"
)

// TokenManager is the token API the facade passes through. Implemented by [services.TokenStore].
type TokenManager interface {
	TokenProvider
	Configure(ctx context.Context, clientID, clientSecret, refreshToken string) bool
	Enabled() bool
	AuthorizationURL(state string) string
	ExchangeAuthorizationCode(ctx context.Context, code string) bool
	Logout() bool
	Credentials() models.Credentials
}

// Integration is the read API consumers use: the current track, its color and the counters,
// plus pass-throughs for interactive authorization and the fallback color.
type Integration struct {
	tokens   TokenManager
	poller   *Poller
	colors   *ColorCache
	counters *Counters
	logger   *log.Logger
	now      services.Clock
}

// NewIntegration wires the color cache to the poller's transitions.
func NewIntegration(tokens TokenManager, poller *Poller, colors *ColorCache, counters *Counters, logger *log.Logger) *Integration {
	if counters == nil {
		counters = poller.counters
	}
	poller.Subscribe(colors)
	return &Integration{
		tokens:   tokens,
		poller:   poller,
		colors:   colors,
		counters: counters,
		logger:   shared.WithLogger(logger, "component", "integration"),
		now:      poller.now,
	}
}

// Options are the collaborators [New] cannot build from configuration alone.
type Options struct {
	HTTPClient *http.Client
	Logger     *log.Logger
	Now        services.Clock

	Rotation           services.RotationListener
	ExtractionListener ExtractionListener

	// Overrides for tests
	NowPlaying services.NowPlayingClient
	Extractor  services.Extractor
}

// New builds the token store, poller and color cache described by cfg. No network call is made;
// call [Integration.Configure] to authenticate.
func New(cfg *shared.Config, opts Options) *Integration {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	var file *services.TokenFile
	if cfg.Persistence.Enabled {
		file = services.NewTokenFile(cfg.Persistence.WritePath(), cfg.Persistence.ReadPaths()...)
	}

	tokens := services.NewTokenStore(services.TokenStoreOptions{
		RedirectURI: cfg.Spotify.RedirectURI,
		AuthURL:     cfg.Spotify.AuthURL,
		TokenURL:    cfg.Spotify.TokenURL,
		ShowDialog:  cfg.Spotify.ShowDialog,
		HTTPClient:  opts.HTTPClient,
		File:        file,
		Listener:    opts.Rotation,
		Logger:      logger,
		Now:         opts.Now,
	})

	api := services.NewAPIService(cfg.Spotify.APIURL, opts.HTTPClient)

	client := opts.NowPlaying
	if client == nil {
		client = services.NewPlaybackClient(api)
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = services.NewArtworkExtractor(api, cfg.Colors.Clusters, logger)
	}

	counters := &Counters{}
	poller := NewPoller(tokens, client, PollerOptions{
		Interval:           cfg.Polling.Interval,
		MinRequestInterval: cfg.Polling.MinRequestInterval,
		RequestTimeout:     cfg.Polling.RequestTimeout,
		Now:                opts.Now,
		Logger:             logger,
		Verbose:            cfg.Logging.Verbose,
		Counters:           counters,
	})

	fallback := models.DefaultFallback
	if cfg.Colors.Fallback != "" {
		if rgb, err := models.ParseHex(cfg.Colors.Fallback); err != nil {
			logger.Warn("ignoring invalid fallback color", "value", cfg.Colors.Fallback, "error", err)
		} else {
			fallback = rgb
		}
	}

	colors := NewColorCache(poller, extractor, ColorCacheOptions{
		TTL:      cfg.Colors.CacheTTL,
		Fallback: &fallback,
		Now:      opts.Now,
		Logger:   logger,
		Verbose:  cfg.Logging.Verbose,
		Counters: counters,
		Listener: opts.ExtractionListener,
	})

	return NewIntegration(tokens, poller, colors, counters, logger)
}

// Configure stores the client identity and tries to obtain a token right away.
func (i *Integration) Configure(ctx context.Context, clientID, clientSecret, refreshToken string) bool {
	return i.tokens.Configure(ctx, clientID, clientSecret, refreshToken)
}

// CurrentTrackInfo returns the latest snapshot, polling if due. It never returns nil.
func (i *Integration) CurrentTrackInfo(ctx context.Context) *models.TrackSnapshot {
	if snap := i.poller.Current(ctx); snap != nil {
		return snap
	}
	return models.StoppedSnapshot(i.now())
}

// CurrentColor returns the playing track's color or the fallback.
func (i *Integration) CurrentColor(ctx context.Context) models.RGB {
	return i.colors.Color(ctx)
}

// IsEnabled reports whether the integration can read playback: it holds a token from a user grant.
func (i *Integration) IsEnabled() bool {
	return i.tokens.Enabled() && i.tokens.HasUserGrant()
}

func (i *Integration) Stats() models.Stats {
	return i.counters.Snapshot()
}

func (i *Integration) Credentials() models.Credentials {
	return i.tokens.Credentials()
}

// AuthorizationURL returns the consent URL, "" when not configured.
func (i *Integration) AuthorizationURL(state string) string {
	return i.tokens.AuthorizationURL(state)
}

// HandleCallback exchanges the code from the OAuth redirect.
func (i *Integration) HandleCallback(ctx context.Context, code string) bool {
	return i.tokens.ExchangeAuthorizationCode(ctx, code)
}

// SetFallbackHex sets the fallback from "#rrggbb" or "rrggbb". Invalid input is logged and ignored.
func (i *Integration) SetFallbackHex(hex string) bool {
	rgb, err := models.ParseHex(hex)
	if err != nil {
		i.logger.Warn("ignoring invalid fallback color", "value", hex, "error", err)
		return false
	}
	i.colors.SetFallback(rgb)
	return true
}

func (i *Integration) Fallback() models.RGB {
	return i.colors.Fallback()
}

// Logout drops all tokens and the persisted snapshot.
func (i *Integration) Logout() bool {
	return i.tokens.Logout()
}

// Subscribe adds a transition listener after the color cache.
func (i *Integration) Subscribe(l TransitionListener) {
	i.poller.Subscribe(l)
}

// Run is the background worker; it returns when ctx is cancelled.
func (i *Integration) Run(ctx context.Context) error {
	i.logger.Info("spotify integration running", "enabled", i.IsEnabled())
	err := i.poller.Run(ctx)
	i.logger.Info("spotify integration stopped", "stats", i.Stats())
	return err
}
