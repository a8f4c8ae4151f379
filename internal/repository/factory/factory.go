// Package factory opens the configured database and builds repositories for it.
// It lives apart from package repository so that the driver packages can
// depend on repository without an import cycle.
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/config"
	"github.com/prn-tf/pixtube/internal/repository"
	"github.com/prn-tf/pixtube/internal/repository/postgres"
	"github.com/prn-tf/pixtube/internal/repository/sqlite"
)

// Database is an open connection that can report health and apply migrations.
type Database interface {
	repository.DatabaseHealth

	// Migrate applies pending embedded migrations.
	Migrate(ctx context.Context) error

	// Version returns the highest applied migration version.
	Version(ctx context.Context) (int, error)

	// Pending returns the number of migrations not yet applied.
	Pending(ctx context.Context) (int, error)
}

// Result contains the created repositories and database connection.
type Result struct {
	Repos    *repository.Repositories
	Database Database
}

// Open connects to the database selected by cfg.Driver.
// Migrations are not applied; call Result.Database.Migrate.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Result, error) {
	logger = logger.With().Str("component", "database").Str("driver", cfg.Driver).Logger()

	switch cfg.Driver {
	case "sqlite":
		sqliteCfg := sqlite.DefaultConfig(cfg.Path)
		if cfg.JournalMode != "" {
			sqliteCfg.JournalMode = cfg.JournalMode
		}
		if cfg.BusyTimeout > 0 {
			sqliteCfg.BusyTimeout = cfg.BusyTimeout
		}
		if cfg.CacheSize != 0 {
			sqliteCfg.CacheSize = cfg.CacheSize
		}
		if cfg.SynchronousMode != "" {
			sqliteCfg.SynchronousMode = cfg.SynchronousMode
		}

		db, err := sqlite.NewDB(ctx, sqliteCfg, logger)
		if err != nil {
			return nil, err
		}
		return &Result{Repos: sqlite.NewRepositories(db), Database: db}, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Result{Repos: postgres.NewRepositories(db), Database: db}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
