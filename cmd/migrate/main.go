// Package main provides a CLI tool for the preference store schema.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/catalog-fetch-service/internal/config"
	"github.com/helixir/catalog-fetch-service/internal/database"
	"github.com/helixir/catalog-fetch-service/internal/observability"
)

// action is one migrator operation selected on the command line.
type action struct {
	name string
	run  func(m *database.Migrator) error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	up := flag.Bool("up", false, "Apply all pending migrations")
	down := flag.Bool("down", false, "Roll back all migrations")
	steps := flag.Int("steps", 0, "Apply N steps (positive=up, negative=down)")
	version := flag.Bool("version", false, "Print the current schema version")
	force := flag.Int("force", -1, "Force the schema version after a failed migration")
	migrationsPath := flag.String("path", "", "Override the migrations directory")
	flag.Parse()

	act, err := selectAction(*up, *down, *steps, *version, *force)
	if err != nil {
		flag.Usage()
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = logger.With().Str("component", "migrate").Logger()

	if !cfg.UsesPostgres() {
		logger.Warn().
			Str("backend", cfg.Preferences.Backend).
			Msg("preferences backend is not postgres; migrating anyway")
	}

	migrationDir := cfg.Database.MigrationPath
	if *migrationsPath != "" {
		migrationDir = *migrationsPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	logger.Info().Str("action", act.name).Str("path", migrationDir).Msg("running migration action")
	if act.run != nil {
		if err := act.run(migrator); err != nil {
			return fmt.Errorf("migrate %s: %w", act.name, err)
		}
	}
	logVersion(migrator, logger)
	return nil
}

// selectAction returns the single action requested by the flags.
func selectAction(up, down bool, steps int, version bool, force int) (action, error) {
	var selected []action
	if up {
		selected = append(selected, action{name: "up", run: (*database.Migrator).Up})
	}
	if down {
		selected = append(selected, action{name: "down", run: (*database.Migrator).Down})
	}
	if steps != 0 {
		selected = append(selected, action{
			name: fmt.Sprintf("steps %d", steps),
			run:  func(m *database.Migrator) error { return m.Steps(steps) },
		})
	}
	if version {
		selected = append(selected, action{name: "version"})
	}
	if force >= 0 {
		selected = append(selected, action{
			name: fmt.Sprintf("force %d", force),
			run:  func(m *database.Migrator) error { return m.Force(force) },
		})
	}

	switch len(selected) {
	case 0:
		return action{}, errors.New("no action specified: use one of -up, -down, -steps N, -version, -force V")
	case 1:
		return selected[0], nil
	default:
		return action{}, errors.New("specify only one action at a time")
	}
}

func logVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
