// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/desertthunder/melodyhue/internal/repositories"
	"github.com/urfave/cli/v3"
)

// setupCommand creates the config file and the history database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and history database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config file to --config",
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the history database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the latest migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles the Spotify authorization code flow
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Connect to Spotify",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize with Spotify in the browser and save the refresh token",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: 2 * time.Minute,
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the consent URL instead of opening it",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "url",
				Usage:  "Print the consent URL",
				Action: r.AuthURL,
			},
			{
				Name:  "status",
				Usage: "Show token state",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Forget all tokens",
				Action: r.AuthLogout,
			},
		},
	}
}

// nowCommand prints the current track and its color
func nowCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "now",
		Usage: "Show the current track and its artwork color",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json or markdown",
				Value:   "text",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Include request and cache counters",
			},
		},
		Action: r.Now,
	}
}

func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Poll in the background and print every transition with its color",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text or json (one object per line)",
				Value:   "text",
			},
		},
		Action: r.Watch,
	}
}

func previewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "Show the current color as a live swatch in the terminal",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "refresh",
				Usage: "How often the swatch is redrawn",
				Value: time.Second,
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where logs go while the preview owns the terminal",
				Value: "./tmp/melodyhue-preview.log",
			},
		},
		Action: r.Preview,
	}
}

// historyCommand lists or exports recorded plays
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded plays with their colors",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of plays to show",
				Value:   repositories.DefaultRecentLimit,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, csv or markdown",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
		},
		Action: r.History,
	}
}

func colorCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "color",
		Usage: "Inspect or change the fallback color",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Save a new fallback color (#rrggbb) to the config file",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "hex",
					},
				},
				Action: r.ColorSet,
			},
			{
				Name:   "show",
				Usage:  "Print the configured fallback color",
				Action: r.ColorShow,
			},
		},
	}
}
