package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/krx-quant/internal/indicator"
	"github.com/yourusername/krx-quant/internal/marketdata"
	"github.com/yourusername/krx-quant/internal/models"
	"github.com/yourusername/krx-quant/internal/signal"
	"github.com/yourusername/krx-quant/internal/strategy"
)

// scriptedStrategy maps the latest close to a verdict; unmapped closes are HOLD
type scriptedStrategy struct {
	lookback int
	script   map[float64]strategy.SignalType
}

func (s scriptedStrategy) Name() string                          { return "scripted" }
func (s scriptedStrategy) MinLookback() int                      { return s.lookback }
func (s scriptedStrategy) GetParameters() map[string]interface{} { return nil }
func (s scriptedStrategy) Evaluate(_ indicator.Snapshot, window []float64) strategy.Verdict {
	last := window[len(window)-1]
	if verdict, ok := s.script[last]; ok {
		return strategy.Verdict{Type: verdict, Confidence: 0.8, Reasons: []string{"scripted " + string(verdict)}}
	}
	return strategy.Verdict{Type: strategy.SignalHold}
}

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func dailyBars(closes ...float64) []models.PriceBar {
	out := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = models.PriceBar{Date: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

var buy101sell110 = map[float64]strategy.SignalType{
	101: strategy.SignalBuy,
	110: strategy.SignalSell,
}

func testConfig(codes ...string) Config {
	return Config{
		Name:           "test",
		StockCodes:     codes,
		StartDate:      day0,
		EndDate:        day0.AddDate(0, 0, 30),
		InitialCash:    1_000_000,
		CommissionRate: DefaultCommissionRate,
		TaxRate:        DefaultTaxRate,
		Sizing:         Sizing{Rule: SizingAllIn},
	}
}

func newTestEngine(t *testing.T, provider marketdata.Provider, script map[float64]strategy.SignalType, lookback int, cfg Config) *Engine {
	t.Helper()
	gen, err := signal.NewGenerator(indicator.NewCalculator(indicator.DefaultParams()),
		scriptedStrategy{lookback: lookback, script: script}, quietLogger())
	require.NoError(t, err)
	engine, err := NewEngine(provider, gen, cfg, quietLogger())
	require.NoError(t, err)
	return engine
}

func staticProvider(t *testing.T, series map[string][]models.PriceBar) *marketdata.StaticProvider {
	t.Helper()
	p := marketdata.NewStaticProvider()
	for code, bars := range series {
		require.NoError(t, p.SetBars(code, bars))
	}
	return p
}

func TestRunSingleRoundTrip(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 102, 110, 111),
	})
	engine := newTestEngine(t, provider, buy101sell110, 1, testConfig("005930"))

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)

	buy, sell := result.Trades[0], result.Trades[1]
	const qty = 9899
	assert.Equal(t, models.TradeSideBuy, buy.Side)
	assert.Equal(t, int64(qty), buy.Quantity)
	assert.Equal(t, 101.0*qty, buy.Amount)
	assert.InDelta(t, 101.0*qty*DefaultCommissionRate, buy.Commission, 1e-9)
	assert.Zero(t, buy.Tax)
	assert.Nil(t, buy.PnL)
	assert.Nil(t, buy.PnLPct)
	assert.Equal(t, "scripted BUY", buy.SignalReason)

	assert.Equal(t, models.TradeSideSell, sell.Side)
	assert.Equal(t, int64(qty), sell.Quantity)
	sellAmount := 110.0 * qty
	assert.InDelta(t, sellAmount*DefaultCommissionRate, sell.Commission, 1e-9)
	assert.InDelta(t, sellAmount*DefaultTaxRate, sell.Tax, 1e-9)
	require.NotNil(t, sell.PnL)
	require.NotNil(t, sell.PnLPct)
	expected := (110.0-101.0)*qty - (buy.Commission + sell.Commission + sell.Tax)
	assert.InDelta(t, expected, *sell.PnL, 1e-6)
	assert.InDelta(t, 86817.69465, *sell.PnL, 1e-4)
	assert.InDelta(t, expected/(101.0*qty), *sell.PnLPct, 1e-12)

	m := result.Metrics
	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.ClosedTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1.0, m.WinRate)
	assert.InDelta(t, expected/1_000_000, m.TotalReturn, 1e-12)
	assert.InDelta(t, 1_000_000+expected, m.FinalEquity, 1e-6)
	assert.Len(t, result.EquityCurve, 5)
}

func TestRunIgnoresInconsistentSignals(t *testing.T) {
	script := map[float64]strategy.SignalType{
		90:  strategy.SignalSell,
		101: strategy.SignalBuy,
		102: strategy.SignalBuy,
		110: strategy.SignalSell,
		111: strategy.SignalSell,
	}
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(90, 101, 102, 110, 111),
	})
	engine := newTestEngine(t, provider, script, 1, testConfig("005930"))

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	assert.Equal(t, 101.0, result.Trades[0].Price)
	assert.Equal(t, 110.0, result.Trades[1].Price)
}

func TestRunOpenPositionWithoutForceClose(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 105),
	})
	engine := newTestEngine(t, provider, buy101sell110, 1, testConfig("005930"))

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, 0, result.Metrics.ClosedTrades)
	assert.Zero(t, result.Metrics.TotalReturn)

	// equity marks the open position at the last close
	last := result.EquityCurve[len(result.EquityCurve)-1]
	buy := result.Trades[0]
	cash := 1_000_000 - buy.Amount - buy.Commission
	assert.InDelta(t, cash+105*float64(buy.Quantity), last.Value, 1e-6)
}

func TestRunForceCloseAtEnd(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 105, 106),
	})
	cfg := testConfig("005930")
	cfg.EndDate = day0.AddDate(0, 0, 2)
	cfg.ForceCloseAtEnd = true
	engine := newTestEngine(t, provider, buy101sell110, 1, cfg)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)

	closing := result.Trades[1]
	assert.Equal(t, models.TradeSideSell, closing.Side)
	assert.Equal(t, 105.0, closing.Price)
	assert.Equal(t, ForceCloseReason, closing.SignalReason)
	assert.True(t, closing.TradeDate.Equal(day0.AddDate(0, 0, 2)))
	require.NotNil(t, closing.PnL)
	assert.Equal(t, 1, result.Metrics.ClosedTrades)
}

func TestRunForceCloseSkipsBuyOnLastBar(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 102, 101, 104),
	})
	cfg := testConfig("005930")
	cfg.EndDate = day0.AddDate(0, 0, 2)
	cfg.ForceCloseAtEnd = true
	engine := newTestEngine(t, provider, buy101sell110, 1, cfg)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Zero(t, result.Metrics.TotalReturn)

	// without force close the same BUY is held open
	cfg.ForceCloseAtEnd = false
	engine = newTestEngine(t, provider, buy101sell110, 1, cfg)
	result, err = engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, models.TradeSideBuy, result.Trades[0].Side)
}

func TestRunScaleIn(t *testing.T) {
	script := map[float64]strategy.SignalType{
		100: strategy.SignalBuy,
		120: strategy.SignalBuy,
		130: strategy.SignalSell,
	}
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 120, 130),
	})

	cfg := testConfig("005930")
	cfg.Sizing = Sizing{Rule: SizingPercent, Percent: 0.5}

	withoutScaleIn := newTestEngine(t, provider, script, 1, cfg)
	result, err := withoutScaleIn.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Trades, 2)

	cfg.AllowScaleIn = true
	withScaleIn := newTestEngine(t, provider, script, 1, cfg)
	result, err = withScaleIn.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 3)

	first, second, sell := result.Trades[0], result.Trades[1], result.Trades[2]
	assert.Equal(t, first.Quantity+second.Quantity, sell.Quantity)
	avg := (first.Amount + second.Amount) / float64(sell.Quantity)
	expected := (130-avg)*float64(sell.Quantity) - (first.Commission + second.Commission + sell.Commission + sell.Tax)
	require.NotNil(t, sell.PnL)
	assert.InDelta(t, expected, *sell.PnL, 1e-6)
	assert.InDelta(t, expected/(avg*float64(sell.Quantity)), *sell.PnLPct, 1e-12)
}

func TestRunFixedAmountSizing(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 110),
	})
	cfg := testConfig("005930")
	cfg.Sizing = Sizing{Rule: SizingFixedAmount, Amount: 10_000}
	engine := newTestEngine(t, provider, buy101sell110, 1, cfg)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	assert.Equal(t, int64(98), result.Trades[0].Quantity)
}

func TestRunSkipsBuyWhenCashCannotCoverOneShare(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 110),
	})
	cfg := testConfig("005930")
	cfg.InitialCash = 50
	engine := newTestEngine(t, provider, buy101sell110, 1, cfg)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 50.0, result.Metrics.FinalEquity)
}

func TestRunWarmupBarsAreNotTraded(t *testing.T) {
	// 101 appears only in the warmup period
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(101, 100, 99, 101, 110),
	})
	cfg := testConfig("005930")
	cfg.StartDate = day0.AddDate(0, 0, 3)
	cfg.WarmupDays = 3

	engine := newTestEngine(t, provider, buy101sell110, 4, cfg)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	assert.True(t, result.Trades[0].TradeDate.Equal(day0.AddDate(0, 0, 3)))
	assert.Len(t, result.EquityCurve, 2)
}

func TestRunWithoutWarmupHoldsUntilLookback(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(101, 100, 99, 101, 110),
	})
	engine := newTestEngine(t, provider, buy101sell110, 3, testConfig("005930"))

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	assert.True(t, result.Trades[0].TradeDate.Equal(day0.AddDate(0, 0, 3)))
}

func TestRunMergesLedgerDeterministically(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"035420": dailyBars(100, 101, 110),
		"005930": dailyBars(100, 101, 102, 110),
		"000660": dailyBars(101, 110),
	})
	cfg := testConfig("035420", "005930", "000660")
	cfg.Concurrency = 3

	engine := newTestEngine(t, provider, buy101sell110, 1, cfg)
	first, err := engine.Run(context.Background())
	require.NoError(t, err)

	codes := make([]string, len(first.Trades))
	for i, tr := range first.Trades {
		codes[i] = tr.TradeDate.Format("01-02") + " " + tr.StockCode + " " + string(tr.Side)
	}
	assert.Equal(t, []string{
		"01-02 000660 BUY",
		"01-03 000660 SELL",
		"01-03 005930 BUY",
		"01-03 035420 BUY",
		"01-04 035420 SELL",
		"01-05 005930 SELL",
	}, codes)

	for i := 0; i < 5; i++ {
		again, err := engine.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRunSplitsCapitalEqually(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 110),
		"000660": dailyBars(100, 101, 110),
	})
	engine := newTestEngine(t, provider, buy101sell110, 1, testConfig("005930", "000660"))

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Trades, 4)
	assert.Equal(t, int64(4949), result.Trades[0].Quantity)
	assert.Equal(t, int64(4949), result.Trades[1].Quantity)
}

func TestRunProviderFailureAbortsRun(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 110),
	})
	engine := newTestEngine(t, provider, buy101sell110, 1, testConfig("005930", "999999"))

	_, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "999999")
	assert.True(t, errors.Is(err, marketdata.ErrNotFound))
}

func TestRunCanceled(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 110),
	})
	engine := newTestEngine(t, provider, buy101sell110, 1, testConfig("005930"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRange(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 110, 101, 110),
	})
	engine := newTestEngine(t, provider, buy101sell110, 1, testConfig("005930"))

	result, err := engine.RunRange(context.Background(), day0.AddDate(0, 0, 3), day0.AddDate(0, 0, 4))
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	assert.True(t, result.Config.StartDate.Equal(day0.AddDate(0, 0, 3)))

	_, err = engine.RunRange(context.Background(), day0.AddDate(0, 0, 4), day0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewEngineValidation(t *testing.T) {
	provider := marketdata.NewStaticProvider()
	gen, err := signal.NewGenerator(indicator.NewCalculator(indicator.DefaultParams()),
		scriptedStrategy{lookback: 1}, quietLogger())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no symbols", func(c *Config) { c.StockCodes = nil }},
		{"duplicate symbol", func(c *Config) { c.StockCodes = []string{"005930", "005930"} }},
		{"start after end", func(c *Config) { c.StartDate = c.EndDate.AddDate(0, 0, 1) }},
		{"missing dates", func(c *Config) { c.StartDate = time.Time{} }},
		{"zero cash", func(c *Config) { c.InitialCash = 0 }},
		{"commission too high", func(c *Config) { c.CommissionRate = 0.2 }},
		{"negative tax", func(c *Config) { c.TaxRate = -0.01 }},
		{"fixed amount missing", func(c *Config) { c.Sizing = Sizing{Rule: SizingFixedAmount} }},
		{"percent out of range", func(c *Config) { c.Sizing = Sizing{Rule: SizingPercent, Percent: 1.5} }},
		{"unknown sizing", func(c *Config) { c.Sizing = Sizing{Rule: "martingale"} }},
		{"negative warmup", func(c *Config) { c.WarmupDays = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("005930")
			tt.mutate(&cfg)
			_, err := NewEngine(provider, gen, cfg, quietLogger())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err = NewEngine(nil, gen, testConfig("005930"), quietLogger())
	assert.Error(t, err)
	_, err = NewEngine(provider, nil, testConfig("005930"), quietLogger())
	assert.Error(t, err)
}

func TestNewEngineFromConfig(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 110),
	})
	engine, err := NewEngineFromConfig(provider, testConfig("005930"), quietLogger())
	require.NoError(t, err)

	cfg := engine.Config()
	assert.Equal(t, strategy.NameMomentumReversal, cfg.Strategy)
	assert.Equal(t, strategy.DefaultParams(), cfg.StrategyParams)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)

	// three bars never reach the default lookback
	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Trades)

	bad := testConfig("005930")
	bad.Strategy = "unknown"
	_, err = NewEngineFromConfig(provider, bad, quietLogger())
	assert.ErrorIs(t, err, strategy.ErrUnknownStrategy)
}

func TestNewEngineRecordsGeneratorParams(t *testing.T) {
	provider := staticProvider(t, map[string][]models.PriceBar{
		"005930": dailyBars(100, 101, 110),
	})
	params := strategy.Params{
		Indicators: indicator.DefaultParams(),
		Oversold:   25,
		Overbought: 80,
	}
	params.Indicators.ShortMA = 3
	params.Indicators.LongMA = 10
	gen, err := signal.NewGenerator(indicator.NewCalculator(params.Indicators),
		strategy.NewMACrossStrategy(params), quietLogger())
	require.NoError(t, err)

	// the config carries no strategy params of its own
	engine, err := NewEngine(provider, gen, testConfig("005930"), quietLogger())
	require.NoError(t, err)

	cfg := engine.Config()
	assert.Equal(t, strategy.NameMACross, cfg.Strategy)
	assert.Equal(t, params, cfg.StrategyParams)

	// the recorded config rebuilds the same strategy
	rebuilt, err := NewEngineFromConfig(provider, cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, cfg.StrategyParams, rebuilt.Config().StrategyParams)
	assert.Equal(t, gen.Strategy().GetParameters(), rebuilt.generator.Strategy().GetParameters())
}
