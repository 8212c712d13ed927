// Package backtest replays a signal strategy over historical KRX daily bars with
// position, commission, and tax accounting.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/krx-quant/internal/indicator"
	"github.com/yourusername/krx-quant/internal/logger"
	"github.com/yourusername/krx-quant/internal/marketdata"
	"github.com/yourusername/krx-quant/internal/metrics"
	"github.com/yourusername/krx-quant/internal/models"
	"github.com/yourusername/krx-quant/internal/signal"
	"github.com/yourusername/krx-quant/internal/strategy"
)

// ForceCloseReason is the signal reason attached to end-of-run liquidations
const ForceCloseReason = "force close at end of backtest"

// Engine runs historical replays for one strategy
type Engine struct {
	provider  marketdata.Provider
	generator *signal.Generator
	config    Config
	logger    *logger.BacktestLogger
}

// NewEngine creates a backtest engine around an existing generator
func NewEngine(provider marketdata.Provider, generator *signal.Generator, cfg Config, log *logrus.Logger) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("market data provider is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("signal generator is required")
	}
	if log == nil {
		log = logrus.New()
	}
	cfg = cfg.withDefaults()
	cfg.Strategy = generator.Strategy().Name()
	if c, ok := generator.Strategy().(strategy.Configurable); ok {
		cfg.StrategyParams = c.Params()
	}
	cfg.StrategyParams.Indicators = generator.IndicatorParams()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		provider:  provider,
		generator: generator,
		config:    cfg.clone(),
		logger:    logger.NewBacktestLogger(log),
	}, nil
}

// NewEngineFromConfig builds the configured strategy and generator, then the engine
func NewEngineFromConfig(provider marketdata.Provider, cfg Config, log *logrus.Logger) (*Engine, error) {
	cfg = cfg.withDefaults()
	strat, err := strategy.New(cfg.Strategy, cfg.StrategyParams)
	if err != nil {
		return nil, err
	}
	generator, err := signal.NewGenerator(indicator.NewCalculator(cfg.StrategyParams.Indicators), strat, log)
	if err != nil {
		return nil, err
	}
	return NewEngine(provider, generator, cfg, log)
}

// Config returns a copy of the effective run configuration
func (e *Engine) Config() Config {
	return e.config.clone()
}

// Run replays every configured symbol over the configured date range
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	return e.run(ctx, e.config.clone())
}

// RunRange replays the configured symbols over [start, end] instead of the configured range
func (e *Engine) RunRange(ctx context.Context, start, end time.Time) (*Result, error) {
	cfg := e.config.clone()
	cfg.StartDate = start
	cfg.EndDate = end
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return e.run(ctx, cfg)
}

func (e *Engine) run(ctx context.Context, cfg Config) (*Result, error) {
	started := time.Now()
	e.logger.LogRunStarted(cfg.Name, cfg.Strategy, cfg.StockCodes, cfg.StartDate, cfg.EndDate, cfg.InitialCash)

	perSymbol := cfg.InitialCash / float64(len(cfg.StockCodes))
	accounts := make([]*account, len(cfg.StockCodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, code := range cfg.StockCodes {
		i, code := i, code
		g.Go(func() error {
			acct, err := e.replaySymbol(gctx, cfg, code, perSymbol)
			if err != nil {
				e.logger.LogSymbolFailed(code, err)
				return fmt.Errorf("replay %s: %w", code, err)
			}
			accounts[i] = acct
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		status := "failure"
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			status = "canceled"
		}
		metrics.RecordBacktestRun(status, time.Since(started).Seconds())
		return nil, err
	}

	trades := mergeTrades(accounts)
	curves := make([][]EquityPoint, len(accounts))
	startingCash := make([]float64, len(accounts))
	for i, acct := range accounts {
		curves[i] = acct.equity
		startingCash[i] = perSymbol
	}
	curve := mergeEquity(curves, startingCash)

	result := &Result{
		Config:      cfg,
		Trades:      trades,
		Metrics:     CalculateMetrics(trades, curve, cfg.InitialCash),
		EquityCurve: curve,
	}

	elapsed := time.Since(started)
	metrics.RecordBacktestRun("success", elapsed.Seconds())
	metrics.UpdateBacktestReturn(cfg.Strategy, result.Metrics.TotalReturn)
	e.logger.LogRunCompleted(cfg.Name, len(trades), result.Metrics.TotalReturn, result.Metrics.WinRate,
		result.Metrics.MaxDrawdown, float64(elapsed.Milliseconds()))
	return result, nil
}

// replaySymbol walks one symbol bar by bar. The signal at bar T sees bars [0..T] only
// and fills at bar T close.
func (e *Engine) replaySymbol(ctx context.Context, cfg Config, code string, cash float64) (*account, error) {
	bars, err := e.provider.GetPriceHistory(ctx, code, cfg.historyStart(), cfg.EndDate)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateBars(bars); err != nil {
		return nil, err
	}

	lastTradable := -1
	for i, bar := range bars {
		if cfg.inRange(bar.Date) {
			lastTradable = i
		}
	}

	acct := newAccount(code, cash)
	closes := make([]float64, 0, len(bars))
	volumes := make([]float64, 0, len(bars))
	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		closes = append(closes, bar.Close)
		volumes = append(volumes, bar.Volume)
		if !cfg.inRange(bar.Date) {
			continue
		}

		sig, err := e.generator.GenerateSignal(closes, volumes)
		if err != nil {
			return nil, err
		}

		switch sig.Signal {
		case strategy.SignalBuy:
			// a fill on the last bar would be force-closed at the same price
			if cfg.ForceCloseAtEnd && i == lastTradable {
				break
			}
			if acct.state() == StateFlat || cfg.AllowScaleIn {
				if trade, ok := acct.buy(bar.Date, bar.Close, cfg, sig.Reason); ok {
					e.recordTrade(trade)
				}
			}
		case strategy.SignalSell:
			if acct.state() == StateLong {
				if trade, ok := acct.sell(bar.Date, bar.Close, cfg, sig.Reason); ok {
					e.recordTrade(trade)
				}
			}
		}

		if i == lastTradable && cfg.ForceCloseAtEnd && acct.state() == StateLong {
			if trade, ok := acct.sell(bar.Date, bar.Close, cfg, ForceCloseReason); ok {
				e.recordTrade(trade)
			}
		}
		acct.mark(bar.Date, bar.Close)
	}
	return acct, nil
}

func (e *Engine) recordTrade(trade SimulatedTrade) {
	metrics.RecordBacktestTrade(string(trade.Side))
	e.logger.LogTrade(trade.StockCode, string(trade.Side), trade.TradeDate, trade.Price, trade.Quantity, trade.SignalReason)
}

// mergeTrades orders the ledger by trade date, then stock code, then BUY before SELL
func mergeTrades(accounts []*account) []SimulatedTrade {
	total := 0
	for _, acct := range accounts {
		total += len(acct.trades)
	}
	trades := make([]SimulatedTrade, 0, total)
	for _, acct := range accounts {
		trades = append(trades, acct.trades...)
	}
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if ka, kb := dayKey(a.TradeDate), dayKey(b.TradeDate); ka != kb {
			return ka < kb
		}
		if a.StockCode != b.StockCode {
			return a.StockCode < b.StockCode
		}
		return sideRank(a.Side) < sideRank(b.Side)
	})
	return trades
}

func sideRank(side models.TradeSide) int {
	if side == models.TradeSideBuy {
		return 0
	}
	return 1
}

// dayKey compares calendar days independent of the time zone each date carries
func dayKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
