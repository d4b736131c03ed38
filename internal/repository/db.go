package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/packing-tracker/db/migrations"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/feed"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ConfigFromCommon converts the environment-loaded database settings.
func ConfigFromCommon(c common.DatabaseConfig) Config {
	return Config{
		DSN:              c.DSN,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		MaxConnLifetime:  c.MaxConnLifetime,
		MaxConnIdleTime:  c.MaxConnIdleTime,
		DialTimeout:      c.DialTimeout,
		StatementTimeout: c.StatementTimeout,
	}
}

// OpenPool creates a pgx pool tuned for the job store.
func OpenPool(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "packing-tracker"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	logger.Info("successfully connected to database")
	return pool, nil
}

// OpenPostgres opens a pgx pool, wraps it as *sql.DB and applies migrations.
func OpenPostgres(ctx context.Context, cfg Config, bus feed.Bus, logger *slog.Logger) (JobStore, *pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := OpenPool(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	db := stdlib.OpenDBFromPool(pool)
	store := newSQLStore(db, dialect.Postgres, bus, logger)
	store.closers = append(store.closers, pool.Close)
	if err := store.migrate(ctx, migrations.Postgres); err != nil {
		_ = store.Close()
		logger.Error("failed to migrate database", "error", err)
		return nil, nil, err
	}
	return store, pool, nil
}

// OpenSQLite opens (or creates) a SQLite database file and applies migrations.
// Writers are serialized on a single connection.
func OpenSQLite(ctx context.Context, path string, bus feed.Bus, logger *slog.Logger) (JobStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open sqlite database", "path", path, "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(1)
	store := newSQLStore(db, dialect.SQLite, bus, logger)
	if err := store.migrate(ctx, migrations.SQLite); err != nil {
		_ = store.Close()
		logger.Error("failed to migrate sqlite database", "path", path, "error", err)
		return nil, err
	}
	logger.Info("opened sqlite job store", "path", path)
	return store, nil
}

// Open builds the store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *common.Config, bus feed.Bus, logger *slog.Logger) (JobStore, error) {
	switch cfg.Store.Driver {
	case common.StoreDriverMemory:
		return NewMemoryStore(logger, WithBus(bus)), nil
	case common.StoreDriverSQLite:
		return OpenSQLite(ctx, cfg.Store.SQLitePath, bus, logger)
	case common.StoreDriverPostgres:
		store, _, err := OpenPostgres(ctx, ConfigFromCommon(cfg.Database), bus, logger)
		return store, err
	}
	return nil, common.NewAppError(common.CodeConfig, "unknown store driver "+cfg.Store.Driver, common.ErrInvalidInput)
}

// Close closes the store gracefully
func Close(store JobStore, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing job store")
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Error("failed to close job store", "error", err)
	}
	logger.Info("job store closed")
}

// HealthCheck pings the pool to catch DSN issues early.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}
