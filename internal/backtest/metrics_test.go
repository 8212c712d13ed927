package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/krx-quant/internal/models"
)

func sellAt(pnl float64) SimulatedTrade {
	return SimulatedTrade{Side: models.TradeSideSell, PnL: &pnl, Commission: 1, Tax: 2}
}

func TestCalculateMetrics(t *testing.T) {
	trades := []SimulatedTrade{
		{Side: models.TradeSideBuy, Commission: 1},
		sellAt(300),
		{Side: models.TradeSideBuy, Commission: 1},
		sellAt(-100),
		{Side: models.TradeSideBuy, Commission: 1},
	}
	curve := mergeEquity([][]EquityPoint{{
		{Time: day0, Value: 1000},
		{Time: day0.AddDate(0, 0, 1), Value: 1300},
		{Time: day0.AddDate(0, 0, 2), Value: 1040},
		{Time: day0.AddDate(0, 0, 3), Value: 1200},
	}}, []float64{1000})

	m := CalculateMetrics(trades, curve, 1000)
	if m.TotalTrades != 5 || m.ClosedTrades != 2 {
		t.Fatalf("expected 5 trades with 2 closed, got %d/%d", m.TotalTrades, m.ClosedTrades)
	}
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.Equal(t, 0.5, m.WinRate)
	assert.InDelta(t, 0.2, m.TotalReturn, 1e-12)
	assert.Equal(t, 200.0, m.RealizedPnL)
	assert.Equal(t, 3.0, m.ProfitFactor)
	assert.Equal(t, 300.0, m.AverageWin)
	assert.Equal(t, -100.0, m.AverageLoss)
	assert.Equal(t, 100.0, m.Expectancy)
	assert.Equal(t, 5.0, m.TotalCommission)
	assert.Equal(t, 4.0, m.TotalTax)
	assert.Equal(t, 1200.0, m.FinalEquity)
	assert.InDelta(t, 0.2, m.MaxDrawdown, 1e-12)
	assert.Equal(t, 4, m.TradingDays)
	assert.NotZero(t, m.SharpeRatio)
	assert.Greater(t, m.Volatility, 0.0)
}

func TestCalculateMetricsEmpty(t *testing.T) {
	m := CalculateMetrics(nil, nil, 1000)
	assert.Equal(t, Metrics{FinalEquity: 1000}, m)
}

func TestProfitFactorWithoutLosses(t *testing.T) {
	if got := calculateProfitFactor([]float64{10, 20}); got != profitFactorCap {
		t.Fatalf("expected capped profit factor, got %f", got)
	}
	if got := calculateProfitFactor(nil); got != 0 {
		t.Fatalf("expected zero profit factor, got %f", got)
	}
}

func TestSharpeRatio(t *testing.T) {
	returns := []float64{0.01, 0.02, -0.01, 0.03}
	sharpe := calculateSharpeRatio(returns)
	if sharpe == 0 || math.IsNaN(sharpe) {
		t.Fatalf("expected non-zero sharpe ratio, got %f", sharpe)
	}
	if calculateSharpeRatio([]float64{0.01, 0.01}) != 0 {
		t.Fatalf("expected zero sharpe for zero variance")
	}
}

func TestMergeEquityForwardFills(t *testing.T) {
	a := []EquityPoint{
		{Time: day0, Value: 510},
		{Time: day0.AddDate(0, 0, 2), Value: 530},
	}
	b := []EquityPoint{
		{Time: day0.AddDate(0, 0, 1), Value: 480},
	}
	curve := mergeEquity([][]EquityPoint{a, b}, []float64{500, 500})

	if len(curve) != 3 {
		t.Fatalf("expected 3 points, got %d", len(curve))
	}
	assert.Equal(t, 1010.0, curve[0].Value)
	assert.Equal(t, 990.0, curve[1].Value)
	assert.Equal(t, 1010.0, curve[2].Value)
	assert.Equal(t, 10.0, curve[0].DailyPnL)
	assert.Equal(t, -20.0, curve[1].DailyPnL)
	assert.InDelta(t, 20.0/1010.0, curve[1].Drawdown, 1e-12)
	assert.InDelta(t, 20.0/1010.0, curve.MaxDrawdown(), 1e-12)
}

func TestEquityCurveToCSV(t *testing.T) {
	curve := EquityCurve{{Time: day0, Value: 100.5}}
	assert.Equal(t, "date,value,drawdown,daily_pnl\n2024-01-02,100.500000,0.000000,0.000000\n", curve.ToCSV())
}
