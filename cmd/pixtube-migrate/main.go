// Package main is the entry point for the PixTube database migration tool.
// Migrations are embedded in the binary for both SQLite and PostgreSQL.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/prn-tf/pixtube/internal/app"
	"github.com/prn-tf/pixtube/internal/config"
	"github.com/prn-tf/pixtube/internal/repository/factory"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flags := pflag.NewFlagSet("pixtube-migrate", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to the YAML config file")
	flags.Usage = printUsage
	_ = flags.Parse(os.Args[1:])

	if flags.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flags.Arg(0)
	switch command {
	case "version":
		fmt.Printf("PixTube Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return

	case "up", "status":
		if err := run(command, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "pixtube-migrate: %v\n", err)
			os.Exit(1)
		}

	case "help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func run(command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := factory.Open(ctx, cfg.Database, logger.Level(zerolog.WarnLevel))
	if err != nil {
		return err
	}
	defer db.Database.Close()

	if command == "up" {
		if err := db.Database.Migrate(ctx); err != nil {
			return err
		}
	}

	version, err := db.Database.Version(ctx)
	if err != nil {
		return err
	}
	pending, err := db.Database.Pending(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("driver:  %s\n", cfg.Database.Driver)
	fmt.Printf("version: %d\n", version)
	fmt.Printf("pending: %d\n", pending)
	return nil
}

func printUsage() {
	fmt.Println(`PixTube Migration Tool

Usage:
  pixtube-migrate [--config file] <command>

Commands:
  up          Apply all pending migrations
  status      Show the applied version and pending count
  version     Print version information
  help        Show this help message`)
}
