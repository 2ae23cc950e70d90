package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/melodyhue/internal/formatter"
	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/desertthunder/melodyhue/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// transitionBuffer bounds how far the printer may fall behind the poller before transitions are dropped.
const transitionBuffer = 32

type watchEvent struct {
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	TrackID string    `json:"track_id,omitempty"`
	Color   string    `json:"color"`
}

// Now prints the current track and its color once.
func (r *Runner) Now(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	integration := r.spotify(ctx)

	// color first: the poll it triggers also refreshes the track
	color := integration.CurrentColor(ctx)
	np := formatter.NowPlaying{
		Track:   integration.CurrentTrackInfo(ctx),
		Color:   color,
		Enabled: integration.IsEnabled(),
	}

	data, err := formatter.RenderNowPlaying(np, format)
	if err != nil {
		return err
	}

	if !cmd.Bool("stats") {
		return r.write(data)
	}

	stats := integration.Stats()
	if format == formatter.JSON {
		return r.writeJSON(struct {
			NowPlaying json.RawMessage `json:"now_playing"`
			Stats      models.Stats    `json:"stats"`
		}{data, stats}, true)
	}

	if err := r.write(data); err != nil {
		return err
	}
	r.writePlain("\n")
	return r.write(formatter.StatsToText(stats))
}

// Watch runs the poller until interrupted and prints each transition as it happens.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if format != formatter.Text && format != formatter.JSON {
		return fmt.Errorf("%w: watch prints text or json", shared.ErrInvalidArgument)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	integration := r.spotify(ctx)
	if !integration.IsEnabled() {
		r.logger.Warn("spotify is not connected, only the fallback color will be shown")
	}

	transitions := make(chan tasks.Transition, transitionBuffer)
	integration.Subscribe(tasks.ChannelListener(transitions))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return integration.Run(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case t := <-transitions:
				if err := r.printTransition(gctx, integration, t, format); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	if format == formatter.Text {
		r.writePlain("\n")
		return r.write(formatter.StatsToText(integration.Stats()))
	}
	return nil
}

// printTransition runs outside the poller's dispatch, so reading the color here is allowed.
func (r *Runner) printTransition(ctx context.Context, integration *tasks.Integration, t tasks.Transition, format formatter.Format) error {
	color := integration.CurrentColor(ctx)

	if format == formatter.JSON {
		return r.writeJSON(watchEvent{
			Kind:    t.Kind.String(),
			At:      t.At,
			Message: t.Message(),
			TrackID: t.Current.TrackID,
			Color:   color.Hex(),
		}, false)
	}
	return r.writePlain("%s  %s  %s\n", t.At.Local().Format("15:04:05"), color.Hex(), t.Message())
}
