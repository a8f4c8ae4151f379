// Package app assembles PixTube's infrastructure and services from configuration.
// The server and the admin CLI share it so both act on the same stores the same way.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/cache/memory"
	rediscache "github.com/prn-tf/pixtube/internal/cache/redis"
	"github.com/prn-tf/pixtube/internal/config"
	"github.com/prn-tf/pixtube/internal/lock"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/repository"
	"github.com/prn-tf/pixtube/internal/repository/factory"
	"github.com/prn-tf/pixtube/internal/service"
	"github.com/prn-tf/pixtube/internal/storage"
	"github.com/prn-tf/pixtube/internal/storage/filesystem"
	s3backend "github.com/prn-tf/pixtube/internal/storage/s3"
)

// sessionKeyPrefix namespaces PixTube keys in a shared Redis.
const sessionKeyPrefix = "pixtube:"

// NewLogger builds the root logger from the logging section.
func NewLogger(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	}

	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Mode selects how long-lived helpers are built.
type Mode int

const (
	// ModeServer keeps an in-process locker and session cache when Redis is off.
	ModeServer Mode = iota

	// ModeCommand is for one-shot processes: without Redis, locks are no-ops
	// and no session cache is opened.
	ModeCommand
)

// Infra holds the opened stores.
type Infra struct {
	Database factory.Database
	Repos    *repository.Repositories
	Storage  storage.Backend
	Sessions repository.Cache
	Locker   lock.Locker
	Metrics  *metrics.Metrics

	closers []func()
	logger  zerolog.Logger
}

// Open connects to the database, the upload store and, when enabled, Redis.
// Migrations are not applied here.
func Open(ctx context.Context, cfg *config.Config, mode Mode, logger zerolog.Logger) (*Infra, error) {
	infra := &Infra{Metrics: metrics.New(), logger: logger}

	db, err := factory.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	infra.Database = db.Database
	infra.Repos = db.Repos
	infra.closers = append(infra.closers, func() { _ = db.Database.Close() })

	infra.Storage, err = openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		infra.Close()
		return nil, err
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = rediscache.NewClient(ctx, cfg.Redis)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		infra.closers = append(infra.closers, func() { _ = redisClient.Close() })
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("connected to Redis")
	}

	switch {
	case redisClient != nil:
		infra.Locker = lock.NewRedisLocker(redisClient)
	case mode == ModeServer:
		ml := lock.NewMemoryLocker()
		infra.Locker = ml
		infra.closers = append(infra.closers, ml.Stop)
	default:
		infra.Locker = lock.NewNoOpLocker()
	}

	if mode == ModeServer {
		if cfg.Session.Backend == "redis" {
			infra.Sessions = rediscache.NewCache(redisClient, sessionKeyPrefix)
		} else {
			mc := memory.NewCache()
			infra.Sessions = mc
			infra.closers = append(infra.closers, mc.Stop)
		}
	}

	return infra, nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.Backend, error) {
	switch cfg.Backend {
	case "s3":
		client, err := s3backend.NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s3backend.NewBackend(client, cfg.S3.Bucket, cfg.S3.Prefix, logger), nil
	case "filesystem":
		return filesystem.NewBackend(cfg.DataDir, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// Close releases everything Open acquired, in reverse order.
func (i *Infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
	i.closers = nil
}

// Services is the set of business services built on one Infra.
type Services struct {
	Accounts   *service.AccountService
	Sessions   *service.SessionService
	Videos     *service.VideoService
	Comments   *service.CommentService
	Moderation *service.ModerationService
	Sweeper    *service.ContentSweeper
}

// NewServices wires the services. Sessions is nil when Infra has no session cache.
func NewServices(cfg *config.Config, infra *Infra, logger zerolog.Logger) *Services {
	accounts := service.NewAccountService(infra.Repos.Account, infra.Metrics, logger)

	svcs := &Services{
		Accounts:   accounts,
		Videos:     service.NewVideoService(infra.Repos, infra.Storage, infra.Metrics, logger),
		Comments:   service.NewCommentService(infra.Repos, infra.Metrics, logger),
		Moderation: service.NewModerationService(infra.Repos, infra.Storage, infra.Locker, infra.Metrics, logger),
		Sweeper: service.NewContentSweeper(infra.Repos.Video, infra.Storage, infra.Locker, infra.Metrics, logger, service.SweeperConfig{
			Interval:    cfg.GC.Interval,
			GracePeriod: cfg.GC.GracePeriod,
			BatchSize:   cfg.GC.BatchSize,
			DryRun:      cfg.GC.DryRun,
		}),
	}
	if infra.Sessions != nil {
		svcs.Sessions = service.NewSessionService(accounts, infra.Sessions, cfg.Session.TTL, infra.Metrics, logger)
	}
	return svcs
}
