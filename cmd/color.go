package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/desertthunder/melodyhue/internal/ui"
	"github.com/urfave/cli/v3"
)

// ColorSet validates the hex argument and saves it as colors.fallback.
func (r *Runner) ColorSet(ctx context.Context, cmd *cli.Command) error {
	hex := cmd.StringArg("hex")
	if hex == "" {
		return fmt.Errorf("%w: color hex (e.g. #25d865)", shared.ErrMissingArgument)
	}

	rgb, err := models.ParseHex(hex)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	if err := r.updateConfigFile(func(c *shared.Config) { c.Colors.Fallback = rgb.Hex() }); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	r.config.Colors.Fallback = rgb.Hex()
	if r.integration != nil {
		r.integration.SetFallbackHex(rgb.Hex())
	}

	return r.writePlain("✓ Fallback color set to %s in %s\n", rgb.Hex(), r.configPath)
}

// ColorShow prints the effective fallback color and a swatch of it.
func (r *Runner) ColorShow(ctx context.Context, cmd *cli.Command) error {
	rgb := models.DefaultFallback
	if r.config.Colors.Fallback != "" {
		parsed, err := models.ParseHex(r.config.Colors.Fallback)
		if err != nil {
			r.logger.Warn("invalid fallback color in config, showing default", "value", r.config.Colors.Fallback)
		} else {
			rgb = parsed
		}
	}

	r.writePlain("Fallback: %s\n", rgb.Hex())
	return r.writePlain("%s\n", ui.Swatch(rgb, 16, 3))
}
