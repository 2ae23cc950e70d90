package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example config to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)

	r.writePlain("✓ Config written to %s\n", r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set spotify.client_id and spotify.client_secret (or SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET)\n")
	r.writePlain("2. Register %s as a redirect URI for your Spotify app\n", shared.DefaultConfig().Spotify.RedirectURI)
	r.writePlain("3. Run 'melodyhue auth login'\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("rollback") {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back: %w", err)
		}
		return r.writePlain("✓ Rolled back the latest migration in %s\n", r.config.Database.Path)
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	plays, err := r.plays()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	count, err := plays.Count()
	if err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s (%d plays recorded)\n", r.config.Database.Path, count)
}
