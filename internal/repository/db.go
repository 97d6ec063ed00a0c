// Package repository is the ledger store: receipts with their job state,
// extracted transactions, expenses, incomes, and users. Queries are built with
// the ent sql builder so the same code runs on postgres (pgx pool) and sqlite
// (modernc, for single-box installs and tests).
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver           string // "postgres" or "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// Open connects per cfg.Driver and wraps the connection for the ent sql
// builder. The returned func closes everything.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*entsql.Driver, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case DriverPostgres:
		return openPostgres(ctx, cfg, logger)
	case DriverSQLite, "sqlite3":
		return openSQLite(ctx, cfg, logger)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*entsql.Driver, func(), error) {
	logger.Info("db.connect", "driver", cfg.Driver)

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("db.connect.failed", "error", err)
		return nil, nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "business-cost-tracker"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("db.connect.failed", "error", err)
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	drv := entsql.OpenDB(dialect.Postgres, db)

	cleanup := func() {
		logger.Info("db.close")
		if err := db.Close(); err != nil {
			logger.Error("db.close.failed", "error", err)
		}
		pool.Close()
	}
	logger.Info("db.connect.ok", "driver", cfg.Driver)
	return drv, cleanup, nil
}

func openSQLite(ctx context.Context, cfg Config, logger *slog.Logger) (*entsql.Driver, func(), error) {
	logger.Info("db.connect", "driver", cfg.Driver)

	db, err := sql.Open("sqlite", sqliteDSN(cfg.DSN))
	if err != nil {
		logger.Error("db.connect.failed", "error", err)
		return nil, nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite is single-writer; one pooled connection avoids
	// SQLITE_BUSY and keeps :memory: databases stable across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error("db.connect.failed", "error", err)
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	drv := entsql.OpenDB(dialect.SQLite, db)
	cleanup := func() {
		logger.Info("db.close")
		if err := db.Close(); err != nil {
			logger.Error("db.close.failed", "error", err)
		}
	}
	logger.Info("db.connect.ok", "driver", cfg.Driver)
	return drv, cleanup, nil
}

// sqliteDSN ensures the driver stores time values in its native text format;
// without it DATETIME columns do not scan back into time.Time.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_time_format") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_time_format=sqlite"
}

// HealthCheck pings the underlying database to catch DSN issues early.
func HealthCheck(ctx context.Context, drv *entsql.Driver, timeout time.Duration, logger *slog.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := drv.DB().PingContext(ctx); err != nil {
		logger.Error("db.ping.failed", "error", err)
		return err
	}
	logger.Debug("db.ping.ok")
	return nil
}
