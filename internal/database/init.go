package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/krx-quant/internal/config"
)

// Schema creates the backtest persistence tables when they are missing
const Schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	config      JSONB NOT NULL,
	result      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_results_user ON backtest_results (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS backtest_trades (
	id             UUID PRIMARY KEY,
	backtest_id    UUID NOT NULL REFERENCES backtest_results (id) ON DELETE CASCADE,
	seq            INTEGER NOT NULL,
	trade_date     TIMESTAMPTZ NOT NULL,
	stock_code     TEXT NOT NULL,
	side           TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
	price          DOUBLE PRECISION NOT NULL,
	quantity       BIGINT NOT NULL,
	amount         DOUBLE PRECISION NOT NULL,
	commission     DOUBLE PRECISION NOT NULL,
	tax            DOUBLE PRECISION NOT NULL,
	signal_reason  TEXT NOT NULL,
	pnl            DOUBLE PRECISION,
	pnl_pct        DOUBLE PRECISION,
	UNIQUE (backtest_id, seq)
);
`

// Initialize creates a database connection pool and verifies the backtest tables exist
func Initialize(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	var exists bool
	err = db.pool.QueryRow(ctx, "SELECT to_regclass('public.backtest_results') IS NOT NULL").Scan(&exists)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to inspect schema: %w", err)
	}
	if !exists {
		logger.Warn("backtest tables not found, creating them")
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// EnsureSchema applies Schema
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
