package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/yourusername/krx-quant/internal/models"
)

// BacktestResultRepository persists completed backtests with their append-only
// trade ledger
type BacktestResultRepository interface {
	// Save stores the result and all of its trades atomically
	Save(ctx context.Context, result *models.BacktestResult, trades []*models.BacktestTrade) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error)
	// ListByUser returns the user's results, newest first
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.BacktestResult, error)
	// GetTrades returns the ledger ordered by sequence number
	GetTrades(ctx context.Context, backtestID uuid.UUID) ([]*models.BacktestTrade, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
