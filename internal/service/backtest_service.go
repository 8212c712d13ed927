// Package service runs backtests and hands their results to persistence.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/krx-quant/internal/backtest"
	"github.com/yourusername/krx-quant/internal/logger"
	"github.com/yourusername/krx-quant/internal/marketdata"
	"github.com/yourusername/krx-quant/internal/models"
	"github.com/yourusername/krx-quant/internal/repository"
)

// ErrForbidden is returned when a user acts on another user's backtest
var ErrForbidden = errors.New("backtest belongs to another user")

// EngineFactory builds the engine for one run
type EngineFactory func(provider marketdata.Provider, cfg backtest.Config, log *logrus.Logger) (*backtest.Engine, error)

// SavedBacktest is a persisted run
type SavedBacktest struct {
	ID        uuid.UUID        `json:"id"`
	UserID    string           `json:"user_id"`
	CreatedAt time.Time        `json:"created_at"`
	Result    *backtest.Result `json:"result"`
}

// BacktestService runs backtests and persists their results
type BacktestService struct {
	provider  marketdata.Provider
	repo      repository.BacktestResultRepository
	newEngine EngineFactory
	logger    *logrus.Logger
	audit     *logger.AuditLogger
	now       func() time.Time
	newID     func() uuid.UUID
}

// Option customizes a BacktestService
type Option func(*BacktestService)

// WithEngineFactory replaces the default strategy-registry engine construction
func WithEngineFactory(f EngineFactory) Option {
	return func(s *BacktestService) { s.newEngine = f }
}

// WithClock replaces the clock used for CreatedAt
func WithClock(now func() time.Time) Option {
	return func(s *BacktestService) { s.now = now }
}

// NewBacktestService creates a new backtest service
func NewBacktestService(
	provider marketdata.Provider,
	repo repository.BacktestResultRepository,
	log *logrus.Logger,
	opts ...Option,
) *BacktestService {
	if log == nil {
		log = logrus.New()
	}
	s := &BacktestService{
		provider:  provider,
		repo:      repo,
		newEngine: backtest.NewEngineFromConfig,
		logger:    log,
		audit:     logger.NewAuditLogger(log),
		now:       time.Now,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunAndSave runs the configured backtest, assigns it an ID and creation time, and
// persists the result with its trade ledger
func (s *BacktestService) RunAndSave(ctx context.Context, userID string, cfg backtest.Config) (*SavedBacktest, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	engine, err := s.newEngine(s.provider, cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build backtest engine: %w", err)
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("backtest run failed: %w", err)
	}

	id := s.newID()
	createdAt := s.now().UTC()
	record, trades, err := result.ToRecord(id, userID, createdAt)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, record, trades); err != nil {
		return nil, fmt.Errorf("failed to save backtest %s: %w", id, err)
	}

	s.audit.LogBacktestSaved(id.String(), userID, record.Name, len(trades), createdAt)
	for _, t := range trades {
		s.audit.LogBacktestTrade(id.String(), t.Seq, t.StockCode, string(t.Side), t.TradeDate, t.Price, t.Quantity, t.PnL)
	}

	return &SavedBacktest{ID: id, UserID: userID, CreatedAt: createdAt, Result: result}, nil
}

// Load reloads a persisted backtest and rebuilds its result
func (s *BacktestService) Load(ctx context.Context, id uuid.UUID) (*SavedBacktest, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load backtest %s: %w", id, err)
	}
	trades, err := s.repo.GetTrades(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for backtest %s: %w", id, err)
	}
	result, err := backtest.FromRecord(record, trades)
	if err != nil {
		return nil, err
	}
	return &SavedBacktest{ID: record.ID, UserID: record.UserID, CreatedAt: record.CreatedAt, Result: result}, nil
}

// List returns a user's stored backtests, newest first
func (s *BacktestService) List(ctx context.Context, userID string, limit int) ([]*models.BacktestResult, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

// Delete removes a stored backtest owned by userID
func (s *BacktestService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if record.UserID != userID {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.LogBacktestDeleted(id.String(), userID)
	return nil
}
