package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodyhue/internal/repositories"
	"github.com/desertthunder/melodyhue/internal/services"
	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/desertthunder/melodyhue/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	integration *tasks.Integration
	db          *sql.DB
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	openBrowser func(url string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Integration *tasks.Integration
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		integration: opts.Integration,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: shared.OpenBrowser,
	}
}

// SetLogger replaces the logger used by the runner and anything it builds afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the history database, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// app builds the root command. Split out of main so tests can drive full command lines.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "melodyhue",
		Usage:   "Track what Spotify is playing and the dominant color of its artwork",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   shared.DefaultConfigPath,
				Sources: cli.EnvVars("MELODYHUE_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log every transition and extracted color",
			},
		},
		Before:   r.load,
		Commands: r.register(),
	}
}

// load reads the config file when present, then applies environment overrides.
func (r *Runner) load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")

	config := shared.DefaultConfig()
	if _, err := os.Stat(r.configPath); err == nil {
		if config, err = shared.LoadConfig(r.configPath); err != nil {
			return ctx, err
		}
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	if err := shared.ApplyEnv(config, os.LookupEnv); err != nil {
		return ctx, err
	}
	if cmd.Bool("verbose") {
		config.Logging.Verbose = true
	}
	if err := config.Validate(); err != nil {
		return ctx, err
	}

	shared.SetLogLevel(r.logger, config.Logging.Level)
	r.config = config
	return ctx, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, nowCommand, watchCommand, previewCommand, historyCommand, colorCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// spotify returns the integration, building and configuring it on first use.
//
// Missing credentials are not an error here: the integration stays disabled and reports the fallback color.
func (r *Runner) spotify(ctx context.Context) *tasks.Integration {
	if r.integration != nil {
		return r.integration
	}

	opts := tasks.Options{
		HTTPClient: r.httpClient,
		Logger:     r.logger,
		Rotation:   services.RotationListenerFunc(r.saveRefreshToken),
	}

	var recorder *repositories.HistoryRecorder
	if r.config.Database.History {
		repo, err := r.plays()
		if err != nil {
			r.logger.Warn("play history disabled", "error", err)
		} else {
			recorder = repositories.NewHistoryRecorder(repo, r.logger)
			opts.ExtractionListener = recorder
		}
	}

	integration := tasks.New(r.config, opts)
	if recorder != nil {
		integration.Subscribe(recorder)
	}

	sp := r.config.Spotify
	if sp.Configured() {
		integration.Configure(ctx, sp.ClientID, sp.ClientSecret, sp.RefreshToken)
	} else {
		r.logger.Debug("spotify credentials not configured")
	}

	r.integration = integration
	return integration
}

// plays opens the history database once and runs pending migrations.
func (r *Runner) plays() (*repositories.PlayRepository, error) {
	if r.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, err
		}
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		r.db = db
	}
	return repositories.NewPlayRepository(r.db), nil
}

// saveRefreshToken writes a rotated refresh token back to the config file.
//
// The file is re-read so values that came from the environment are not written into it.
func (r *Runner) saveRefreshToken(refreshToken string) {
	r.config.Spotify.RefreshToken = refreshToken

	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Debug("no config file, refresh token kept in memory", "path", r.configPath)
		return
	}
	if err := r.updateConfigFile(func(c *shared.Config) { c.Spotify.RefreshToken = refreshToken }); err != nil {
		r.logger.Warn("failed to save refresh token", "path", r.configPath, "error", err)
		return
	}
	r.logger.Debug("refresh token saved", "path", r.configPath)
}

// updateConfigFile applies fn to the on-disk config (defaults when the file does not exist yet) and saves it.
func (r *Runner) updateConfigFile(fn func(*shared.Config)) error {
	if r.configPath == "" {
		return fmt.Errorf("%w: no config path", shared.ErrMissingConfig)
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(r.configPath); err == nil {
		if config, err = shared.LoadConfig(r.configPath); err != nil {
			return err
		}
	}

	fn(config)
	return shared.SaveConfig(r.configPath, config)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) write(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	return r.write(fmt.Appendf(nil, format, args...))
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.write([]byte("\n" + fmt.Sprintf(format, args...) + "\n"))
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
