package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yourusername/krx-quant/internal/database"
	"github.com/yourusername/krx-quant/internal/models"
)

const (
	errScanBacktestResult = "failed to scan backtest result: %w"
	pgUniqueViolation     = "23505"
)

// PostgresBacktestResultRepository implements BacktestResultRepository for PostgreSQL
type PostgresBacktestResultRepository struct {
	db *database.DB
}

// NewPostgresBacktestResultRepository creates a new backtest result repository
func NewPostgresBacktestResultRepository(db *database.DB) BacktestResultRepository {
	return &PostgresBacktestResultRepository{db: db}
}

// Save inserts the result row and every trade row in one transaction
func (r *PostgresBacktestResultRepository) Save(ctx context.Context, result *models.BacktestResult, trades []*models.BacktestTrade) error {
	if result == nil || result.ID == uuid.Nil {
		return models.ErrInvalidID
	}
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		conn := r.db.Conn(txCtx)
		_, err := conn.Exec(txCtx, `
			INSERT INTO backtest_results (id, user_id, name, config, result, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			result.ID, result.UserID, result.Name, []byte(result.Config), []byte(result.Result), result.CreatedAt,
		)
		if err != nil {
			return wrapInsertError("backtest result", err)
		}

		for _, t := range trades {
			if t.BacktestID != result.ID {
				return fmt.Errorf("trade %s belongs to backtest %s: %w", t.ID, t.BacktestID, models.ErrInvalidID)
			}
			_, err := conn.Exec(txCtx, `
				INSERT INTO backtest_trades (
					id, backtest_id, seq, trade_date, stock_code, side, price, quantity,
					amount, commission, tax, signal_reason, pnl, pnl_pct
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
				t.ID, t.BacktestID, t.Seq, t.TradeDate, t.StockCode, string(t.Side), t.Price, t.Quantity,
				t.Amount, t.Commission, t.Tax, t.SignalReason, t.PnL, t.PnLPct,
			)
			if err != nil {
				return wrapInsertError("backtest trade", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a backtest result
func (r *PostgresBacktestResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, name, config, result, created_at
		FROM backtest_results WHERE id = $1`, id)

	result, err := scanBacktestResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf(errScanBacktestResult, err)
	}
	return result, nil
}

// ListByUser retrieves a user's backtest results, newest first
func (r *PostgresBacktestResultRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.BacktestResult, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT id, user_id, name, config, result, created_at
		FROM backtest_results WHERE user_id = $1
		ORDER BY created_at DESC, id LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest results: %w", err)
	}
	defer rows.Close()

	var results []*models.BacktestResult
	for rows.Next() {
		result, err := scanBacktestResult(rows)
		if err != nil {
			return nil, fmt.Errorf(errScanBacktestResult, err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// GetTrades retrieves the trade ledger of a backtest in sequence order
func (r *PostgresBacktestResultRepository) GetTrades(ctx context.Context, backtestID uuid.UUID) ([]*models.BacktestTrade, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT id, backtest_id, seq, trade_date, stock_code, side, price, quantity,
			amount, commission, tax, signal_reason, pnl, pnl_pct
		FROM backtest_trades WHERE backtest_id = $1 ORDER BY seq`, backtestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.BacktestTrade
	for rows.Next() {
		t := &models.BacktestTrade{}
		var side string
		if err := rows.Scan(
			&t.ID, &t.BacktestID, &t.Seq, &t.TradeDate, &t.StockCode, &side, &t.Price, &t.Quantity,
			&t.Amount, &t.Commission, &t.Tax, &t.SignalReason, &t.PnL, &t.PnLPct,
		); err != nil {
			return nil, fmt.Errorf("failed to scan backtest trade: %w", err)
		}
		t.Side = models.TradeSide(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Delete removes a backtest result; trade rows cascade
func (r *PostgresBacktestResultRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM backtest_results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backtest result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanBacktestResult(row pgx.Row) (*models.BacktestResult, error) {
	result := &models.BacktestResult{}
	var cfg, res []byte
	if err := row.Scan(&result.ID, &result.UserID, &result.Name, &cfg, &res, &result.CreatedAt); err != nil {
		return nil, err
	}
	result.Config = cfg
	result.Result = res
	return result, nil
}

func wrapInsertError(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("failed to save %s: %w", what, models.ErrDuplicateKey)
	}
	return fmt.Errorf("failed to save %s: %w", what, err)
}
