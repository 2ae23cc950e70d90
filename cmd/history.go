package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/melodyhue/internal/formatter"
	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/urfave/cli/v3"
)

// History lists recorded plays newest first, or exports them with --output.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	limit := cmd.Int("limit")
	if limit < 1 {
		return fmt.Errorf("%w: --limit must be at least 1", shared.ErrInvalidArgument)
	}

	plays, err := r.plays()
	if err != nil {
		return err
	}

	recent, err := plays.Recent(limit)
	if err != nil {
		return err
	}
	r.logger.Debug("loaded plays", "count", len(recent), "limit", limit)

	if output := cmd.String("output"); output != "" {
		path, err := formatter.WriteHistoryExport(recent, format, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %d plays to %s\n", len(recent), path)
	}

	data, err := formatter.RenderHistory(recent, format)
	if err != nil {
		return err
	}
	return r.write(data)
}
