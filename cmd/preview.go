package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/desertthunder/melodyhue/internal/tasks"
	"github.com/desertthunder/melodyhue/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Preview launches the terminal swatch while the poller runs in the background.
func (r *Runner) Preview(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.config.Logging.Level)
	r.SetLogger(fileLogger)

	integration := r.spotify(ctx)

	transitions := make(chan tasks.Transition, transitionBuffer)
	integration.Subscribe(tasks.ChannelListener(transitions))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return integration.Run(gctx) })

	model := ui.NewModel(gctx, integration, transitions, cmd.Duration("refresh"))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx))

	_, runErr := p.Run()
	cancel()
	g.Wait()

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", runErr)
	}
	return nil
}
