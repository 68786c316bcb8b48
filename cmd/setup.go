package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/playgen/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes config.toml from the embedded template when missing, then initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("using existing config", "path", configPath)
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.writePlain("✓ Config written to %s\n", configPath)
		r.config = nil
	}

	if r.config == nil {
		config, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		r.config = config
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if _, err := r.runLog(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if r.db != nil {
		version, err := shared.MigrationVersion(r.db)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		r.logger.Debug("database ready", "schema_version", version)
	}

	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify and credentials.lastfm in %s (or SPOTIFY_CLIENT_ID, LASTFM_API_KEY, ...)\n", configPath)
	r.writePlain("2. Run 'playgen auth' to authorize playlist access\n")
	return nil
}
