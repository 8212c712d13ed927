package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/yourusername/krx-quant/internal/models"
)

// MemoryBacktestResultRepository keeps results in process memory. Values are deep
// copied on the way in and out so callers never share state with the store.
type MemoryBacktestResultRepository struct {
	mu      sync.RWMutex
	results map[uuid.UUID]*models.BacktestResult
	trades  map[uuid.UUID][]*models.BacktestTrade
}

// NewMemoryBacktestResultRepository creates an empty in-memory repository
func NewMemoryBacktestResultRepository() *MemoryBacktestResultRepository {
	return &MemoryBacktestResultRepository{
		results: make(map[uuid.UUID]*models.BacktestResult),
		trades:  make(map[uuid.UUID][]*models.BacktestTrade),
	}
}

// Save stores the result and its trades atomically
func (r *MemoryBacktestResultRepository) Save(ctx context.Context, result *models.BacktestResult, trades []*models.BacktestTrade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if result == nil || result.ID == uuid.Nil {
		return models.ErrInvalidID
	}
	for _, t := range trades {
		if t.BacktestID != result.ID {
			return fmt.Errorf("trade %s belongs to backtest %s: %w", t.ID, t.BacktestID, models.ErrInvalidID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.results[result.ID]; exists {
		return fmt.Errorf("backtest %s: %w", result.ID, models.ErrDuplicateKey)
	}
	r.results[result.ID] = copyResult(result)
	stored := make([]*models.BacktestTrade, len(trades))
	for i, t := range trades {
		stored[i] = copyTrade(t)
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].Seq < stored[j].Seq })
	r.trades[result.ID] = stored
	return nil
}

// GetByID retrieves a backtest result
func (r *MemoryBacktestResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyResult(result), nil
}

// ListByUser returns the user's results, newest first
func (r *MemoryBacktestResultRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.BacktestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*models.BacktestResult
	for _, result := range r.results {
		if result.UserID == userID {
			results = append(results, copyResult(result))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID.String() < results[j].ID.String()
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetTrades returns the ledger ordered by sequence number
func (r *MemoryBacktestResultRepository) GetTrades(ctx context.Context, backtestID uuid.UUID) ([]*models.BacktestTrade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.results[backtestID]; !ok {
		return nil, models.ErrNotFound
	}
	stored := r.trades[backtestID]
	out := make([]*models.BacktestTrade, len(stored))
	for i, t := range stored {
		out[i] = copyTrade(t)
	}
	return out, nil
}

// Delete removes a backtest result and its trades
func (r *MemoryBacktestResultRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.results[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.results, id)
	delete(r.trades, id)
	return nil
}

func copyResult(in *models.BacktestResult) *models.BacktestResult {
	out := *in
	out.Config = append([]byte(nil), in.Config...)
	out.Result = append([]byte(nil), in.Result...)
	return &out
}

func copyTrade(in *models.BacktestTrade) *models.BacktestTrade {
	out := *in
	if in.PnL != nil {
		v := *in.PnL
		out.PnL = &v
	}
	if in.PnLPct != nil {
		v := *in.PnLPct
		out.PnLPct = &v
	}
	return &out
}
