// Package main is the entry point for the PixTube server.
// PixTube is a small video-sharing site with administrator moderation.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/prn-tf/pixtube/internal/app"
	"github.com/prn-tf/pixtube/internal/config"
	"github.com/prn-tf/pixtube/internal/handler"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the YAML config file")
	showVersion := pflag.BoolP("version", "v", false, "print version information and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("PixTube Server\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "pixtube-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting PixTube server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := app.Open(ctx, cfg, app.ModeServer, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	if err := infra.Database.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	svcs := app.NewServices(cfg, infra, logger)

	created, err := svcs.Accounts.EnsureBootstrapAdmin(ctx, cfg.Bootstrap.AdminHandle, cfg.Bootstrap.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap administrator: %w", err)
	}
	if created && cfg.Bootstrap.AdminPassword == "admin" {
		logger.Warn().Str("handle", cfg.Bootstrap.AdminHandle).Msg("bootstrap administrator uses the default password; change bootstrap.admin_password")
	}

	router, err := handler.NewRouter(handler.RouterConfig{
		Accounts:      svcs.Accounts,
		Sessions:      svcs.Sessions,
		Videos:        svcs.Videos,
		Comments:      svcs.Comments,
		Moderation:    svcs.Moderation,
		Database:      infra.Database,
		Metrics:       infra.Metrics,
		Session:       cfg.Session,
		MaxUploadSize: cfg.Storage.MaxUploadSize,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	if cfg.GC.Enabled {
		svcs.Sweeper.Start()
		defer svcs.Sweeper.Stop()
	}

	servers := []*http.Server{{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, infra.Metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	serverErrors := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- fmt.Errorf("server on %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case runErr = <-serverErrors:
		logger.Error().Err(runErr).Msg("server error")
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("addr", srv.Addr).Msg("graceful shutdown failed")
			_ = srv.Close()
		}
	}

	logger.Info().Msg("server stopped")
	return runErr
}
