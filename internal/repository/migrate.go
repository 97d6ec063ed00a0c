package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// Migrate ensures the required tables are present. Statements are idempotent
// so repeated startups are safe.
func Migrate(ctx context.Context, drv *entsql.Driver, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	var stmts []string
	switch drv.Dialect() {
	case dialect.SQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				picture_url TEXT,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS receipts (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				filename TEXT NOT NULL,
				file_path TEXT NOT NULL,
				file_ext TEXT NOT NULL,
				content_hash BLOB NOT NULL,
				status TEXT NOT NULL,
				progress REAL NOT NULL DEFAULT 0,
				error_message TEXT,
				processing_seconds REAL,
				feedback TEXT,
				merchant_name TEXT,
				receipt_date DATE,
				receipt_total TEXT,
				processed BOOLEAN NOT NULL DEFAULT 0,
				verified BOOLEAN NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				receipt_id TEXT NOT NULL,
				description TEXT NOT NULL,
				amount TEXT NOT NULL,
				date DATE NOT NULL,
				category TEXT NOT NULL,
				original_text TEXT,
				confidence_score REAL NOT NULL DEFAULT 1.0,
				verified BOOLEAN NOT NULL DEFAULT 0,
				user_verified BOOLEAN NOT NULL DEFAULT 0,
				added_to_expenses BOOLEAN NOT NULL DEFAULT 0,
				expense_id TEXT,
				correction_history TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(receipt_id) REFERENCES receipts(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS expenses (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				amount TEXT NOT NULL,
				description TEXT NOT NULL,
				date DATE NOT NULL,
				category TEXT NOT NULL,
				property_type TEXT,
				tax_deductible BOOLEAN NOT NULL DEFAULT 0,
				attachment_filename TEXT,
				attachment_path TEXT,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS incomes (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				amount TEXT NOT NULL,
				description TEXT NOT NULL,
				date DATE NOT NULL,
				category TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_receipts_user ON receipts(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_receipts_user_hash ON receipts(user_id, content_hash)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_receipt ON transactions(receipt_id)`,
			`CREATE INDEX IF NOT EXISTS idx_expenses_user ON expenses(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_incomes_user ON incomes(user_id)`,
		}
	case dialect.Postgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id UUID PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				picture_url TEXT,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS receipts (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				filename TEXT NOT NULL,
				file_path TEXT NOT NULL,
				file_ext TEXT NOT NULL,
				content_hash BYTEA NOT NULL,
				status TEXT NOT NULL,
				progress DOUBLE PRECISION NOT NULL DEFAULT 0,
				error_message TEXT,
				processing_seconds DOUBLE PRECISION,
				feedback JSONB,
				merchant_name TEXT,
				receipt_date DATE,
				receipt_total NUMERIC(14,2),
				processed BOOLEAN NOT NULL DEFAULT FALSE,
				verified BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS transactions (
				id UUID PRIMARY KEY,
				receipt_id UUID NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
				description TEXT NOT NULL,
				amount NUMERIC(14,2) NOT NULL,
				date DATE NOT NULL,
				category TEXT NOT NULL,
				original_text TEXT,
				confidence_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
				verified BOOLEAN NOT NULL DEFAULT FALSE,
				user_verified BOOLEAN NOT NULL DEFAULT FALSE,
				added_to_expenses BOOLEAN NOT NULL DEFAULT FALSE,
				expense_id UUID,
				correction_history JSONB,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS expenses (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				amount NUMERIC(14,2) NOT NULL,
				description TEXT NOT NULL,
				date DATE NOT NULL,
				category TEXT NOT NULL,
				property_type TEXT,
				tax_deductible BOOLEAN NOT NULL DEFAULT FALSE,
				attachment_filename TEXT,
				attachment_path TEXT,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS incomes (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				amount NUMERIC(14,2) NOT NULL,
				description TEXT NOT NULL,
				date DATE NOT NULL,
				category TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_receipts_user ON receipts(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_receipts_user_hash ON receipts(user_id, content_hash)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_receipt ON transactions(receipt_id)`,
			`CREATE INDEX IF NOT EXISTS idx_expenses_user ON expenses(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_incomes_user ON incomes(user_id)`,
		}
	default:
		return fmt.Errorf("unsupported dialect for migration: %s", drv.Dialect())
	}

	for _, stmt := range stmts {
		if _, err := drv.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", drv.Dialect(), err)
		}
	}
	logger.Info("db.migrate.ok", "dialect", drv.Dialect(), "statements", len(stmts))
	return nil
}
