// Package postgres provides PostgreSQL database utilities.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/config"
	"github.com/prn-tf/pixtube/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a pgx connection pool with additional functionality.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

type txKey struct{}

// NewDB creates a new database connection pool.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	return NewDBFromDSN(ctx, cfg.DSN(), cfg, logger)
}

// NewDBFromDSN creates a pool from an explicit connection string.
// Pool sizing still comes from cfg.
func NewDBFromDSN(ctx context.Context, dsn string, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	if logger.GetLevel() <= zerolog.DebugLevel {
		poolConfig.ConnConfig.Tracer = &queryTracer{logger: logger}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Uint16("port", poolConfig.ConnConfig.Port).
		Str("database", poolConfig.ConnConfig.Database).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("connected to PostgreSQL")

	return &DB{
		Pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	db.Pool.Close()
	db.logger.Info().Msg("database connection pool closed")
	return nil
}

// Health pings the pool.
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// conn returns the transaction carried by ctx, or the pool when there is none.
func (db *DB) conn(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db.Pool
}

// WithTx executes a function within a transaction.
// Repository calls made with the context passed to fn join the transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed. Nested calls reuse the outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Version returns the highest applied migration version, or 0.
func (db *DB) Version(ctx context.Context) (int, error) {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var version int
	if err := db.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current migration version: %w", err)
	}
	return version, nil
}

// Pending returns the number of embedded migrations not yet applied.
func (db *DB) Pending(ctx context.Context) (int, error) {
	current, err := db.Version(ctx)
	if err != nil {
		return 0, err
	}
	versions, _, err := embeddedMigrations()
	if err != nil {
		return 0, err
	}

	pending := 0
	for _, v := range versions {
		if v > current {
			pending++
		}
	}
	return pending, nil
}

// Migrate applies every embedded migration newer than the current version.
func (db *DB) Migrate(ctx context.Context) error {
	current, err := db.Version(ctx)
	if err != nil {
		return err
	}

	db.logger.Info().Int("current_version", current).Msg("checking migrations")

	versions, names, err := embeddedMigrations()
	if err != nil {
		return err
	}

	for i, version := range versions {
		if version <= current {
			continue
		}

		body, err := migrationsFS.ReadFile("migrations/" + names[i])
		if err != nil {
			return fmt.Errorf("failed to read migration %d: %w", version, err)
		}

		err = db.WithTx(ctx, func(ctx context.Context) error {
			q := db.conn(ctx)
			if _, err := q.Exec(ctx, string(body)); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", version, err)
			}
			if _, err := q.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		db.logger.Info().Int("version", version).Str("name", names[i]).Msg("applied migration")
	}

	return nil
}

// embeddedMigrations returns the versions and file names of the *.up.sql files in order.
func embeddedMigrations() ([]int, []string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	byVersion := make(map[int]string)
	var versions []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("migration %q has invalid version: %w", name, err)
		}
		byVersion[version] = name
		versions = append(versions, version)
	}
	sort.Ints(versions)

	names := make([]string, len(versions))
	for i, v := range versions {
		names[i] = byVersion[v]
	}
	return versions, names, nil
}

// NewRepositories wires every PostgreSQL repository around db.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Account: NewAccountRepository(db),
		Video:   NewVideoRepository(db),
		Comment: NewCommentRepository(db),
		Tx:      db,
	}
}

// queryTracer implements pgx.QueryTracer for debug logging.
type queryTracer struct {
	logger zerolog.Logger
}

type traceQueryCtxKey struct{}

type traceQueryData struct {
	sql       string
	startTime time.Time
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceQueryCtxKey{}, &traceQueryData{
		sql:       data.SQL,
		startTime: time.Now(),
	})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	queryData, ok := ctx.Value(traceQueryCtxKey{}).(*traceQueryData)
	if !ok {
		return
	}

	event := t.logger.Debug().
		Str("sql", queryData.sql).
		Dur("duration", time.Since(queryData.startTime)).
		Str("command_tag", data.CommandTag.String())

	if data.Err != nil {
		event.Err(data.Err)
	}

	event.Msg("query executed")
}

// Querier is an interface that both pgxpool.Pool and pgx.Tx implement.
// This allows repositories to work with both.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ensure both Pool and Tx implement Querier
var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)

	_ repository.TxManager      = (*DB)(nil)
	_ repository.DatabaseHealth = (*DB)(nil)
)
