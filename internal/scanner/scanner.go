// Package scanner ranks a stock universe by signal confidence.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/krx-quant/internal/logger"
	"github.com/yourusername/krx-quant/internal/marketdata"
	"github.com/yourusername/krx-quant/internal/metrics"
	"github.com/yourusername/krx-quant/internal/models"
	"github.com/yourusername/krx-quant/internal/signal"
	"github.com/yourusername/krx-quant/internal/strategy"
	"golang.org/x/sync/errgroup"
)

// Argument errors returned before any symbol is fetched
var (
	ErrInvalidScanType   = errors.New("scan type must be BUY or SELL")
	ErrInvalidConfidence = errors.New("min confidence must be within [0, 1]")
	ErrInvalidLimit      = errors.New("limit must be at least 1")
)

// ScanResult is one ranked opportunity
type ScanResult struct {
	StockCode    string              `json:"stock_code"`
	StockName    string              `json:"stock_name"`
	Market       models.Market       `json:"market,omitempty"`
	Signal       strategy.SignalType `json:"signal"`
	Confidence   float64             `json:"confidence"`
	CurrentPrice float64             `json:"current_price"`
	RSI          *float64            `json:"rsi"`
	VolumeSpike  bool                `json:"volume_spike"`
	Reasoning    []string            `json:"reasoning"`
}

// Config configures a Scanner
type Config struct {
	// HistoryBars is the number of daily bars fetched per symbol
	HistoryBars int
	Concurrency int
}

// Scanner evaluates every symbol of a universe with one generator
type Scanner struct {
	provider  marketdata.Provider
	generator *signal.Generator
	universe  []models.Stock
	cfg       Config
	logger    *logger.ScanLogger
}

// NewScanner creates a scanner. History shorter than the strategy lookback would
// make every symbol HOLD, so HistoryBars is raised to at least that.
func NewScanner(provider marketdata.Provider, generator *signal.Generator, universe []models.Stock, cfg Config, log *logrus.Logger) (*Scanner, error) {
	if provider == nil {
		return nil, fmt.Errorf("market data provider is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("signal generator is required")
	}
	if log == nil {
		log = logrus.New()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if lookback := generator.Strategy().MinLookback(); cfg.HistoryBars < lookback {
		cfg.HistoryBars = lookback
	}

	stocks := make([]models.Stock, len(universe))
	copy(stocks, universe)

	return &Scanner{
		provider:  provider,
		generator: generator,
		universe:  stocks,
		cfg:       cfg,
		logger:    logger.NewScanLogger(log),
	}, nil
}

// ScanMarket evaluates the universe and returns at most limit results whose
// signal equals scanType with confidence >= minConfidence, ordered by confidence
// descending then stock code ascending. Symbols whose data cannot be fetched or
// evaluated are skipped.
func (s *Scanner) ScanMarket(ctx context.Context, scanType strategy.SignalType, minConfidence float64, limit int) ([]ScanResult, error) {
	if scanType != strategy.SignalBuy && scanType != strategy.SignalSell {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScanType, scanType)
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfidence, minConfidence)
	}
	if limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	started := time.Now()
	s.logger.LogScanStarted(string(scanType), minConfidence, limit, len(s.universe))

	slots := make([]*ScanResult, len(s.universe))
	var skipped int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, stock := range s.universe {
		i, stock := i, stock
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result, err := s.evaluate(gctx, stock)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				atomic.AddInt64(&skipped, 1)
				metrics.RecordScanSkip()
				return nil
			}
			if result.Signal == scanType && result.Confidence >= minConfidence {
				slots[i] = result
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RecordScan(string(scanType), "canceled", time.Since(started).Seconds(), 0)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordScan(string(scanType), "canceled", time.Since(started).Seconds(), 0)
		return nil, err
	}

	results := make([]ScanResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	matched := len(results)
	SortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}

	elapsed := time.Since(started)
	metrics.RecordScan(string(scanType), "success", elapsed.Seconds(), len(results))
	s.logger.LogScanCompleted(string(scanType), len(s.universe), int(skipped), matched, len(results),
		float64(elapsed.Microseconds())/1000)
	return results, nil
}

// evaluate fetches history for one symbol and runs the generator on it
func (s *Scanner) evaluate(ctx context.Context, stock models.Stock) (*ScanResult, error) {
	bars, err := s.provider.GetDailyPrices(ctx, stock.Code, s.cfg.HistoryBars)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.LogSymbolSkipped(stock.Code, "fetch", err)
		}
		return nil, err
	}
	if err := models.ValidateBars(bars); err != nil {
		s.logger.LogSymbolSkipped(stock.Code, "validate", err)
		return nil, err
	}

	sig, err := s.generator.GenerateFromBars(bars)
	if err != nil {
		s.logger.LogSymbolSkipped(stock.Code, "generate", err)
		return nil, err
	}

	result := &ScanResult{
		StockCode:   stock.Code,
		StockName:   stock.Name,
		Market:      stock.Market,
		Signal:      sig.Signal,
		Confidence:  sig.Confidence,
		RSI:         sig.Indicators.RSI,
		VolumeSpike: sig.Indicators.VolumeSpike,
		Reasoning:   sig.Reasons,
	}
	if sig.Indicators.CurrentPrice != nil {
		result.CurrentPrice = *sig.Indicators.CurrentPrice
	} else if len(bars) > 0 {
		result.CurrentPrice = bars[len(bars)-1].Close
	}
	return result, nil
}

// SortResults orders results by confidence descending, then stock code ascending
func SortResults(results []ScanResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].StockCode < results[j].StockCode
	})
}
