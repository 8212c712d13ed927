package backtest

import (
	"math"
	"sort"

	"github.com/yourusername/krx-quant/internal/models"
)

// profitFactorCap stands in for an infinite profit factor when there are no losses
const profitFactorCap = 999

// tradingDaysPerYear annualizes daily return statistics
const tradingDaysPerYear = 252

// Metrics represents backtest performance metrics
type Metrics struct {
	TotalReturn     float64 `json:"total_return"`
	RealizedPnL     float64 `json:"realized_pnl"`
	FinalEquity     float64 `json:"final_equity"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	SortinoRatio    float64 `json:"sortino_ratio"`
	Volatility      float64 `json:"volatility"`
	ValueAtRisk95   float64 `json:"var_95"`
	TotalTrades     int     `json:"total_trades"`
	ClosedTrades    int     `json:"closed_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	ProfitFactor    float64 `json:"profit_factor"`
	AverageWin      float64 `json:"average_win"`
	AverageLoss     float64 `json:"average_loss"`
	Expectancy      float64 `json:"expectancy"`
	LargestWin      float64 `json:"largest_win"`
	LargestLoss     float64 `json:"largest_loss"`
	TotalCommission float64 `json:"total_commission"`
	TotalTax        float64 `json:"total_tax"`
	TradingDays     int     `json:"trading_days"`
}

// CalculateMetrics derives aggregate metrics from the merged ledger and equity curve.
// Trade statistics use closed trades only; TotalReturn is realized PnL over initial cash.
func CalculateMetrics(trades []SimulatedTrade, curve EquityCurve, initialCash float64) Metrics {
	m := Metrics{
		TotalTrades: len(trades),
		FinalEquity: initialCash,
		TradingDays: len(curve),
	}

	closed := make([]float64, 0, len(trades))
	for _, t := range trades {
		m.TotalCommission += t.Commission
		m.TotalTax += t.Tax
		if t.Side == models.TradeSideSell && t.PnL != nil {
			closed = append(closed, *t.PnL)
			m.RealizedPnL += *t.PnL
		}
	}
	m.ClosedTrades = len(closed)
	m.WinningTrades, m.LosingTrades, m.AverageWin, m.AverageLoss, m.LargestWin, m.LargestLoss = calculateTradeStats(closed)
	m.WinRate = calculateWinRate(m.WinningTrades, m.ClosedTrades)
	m.ProfitFactor = calculateProfitFactor(closed)
	if m.ClosedTrades > 0 {
		m.Expectancy = m.RealizedPnL / float64(m.ClosedTrades)
	}
	if initialCash > 0 {
		m.TotalReturn = m.RealizedPnL / initialCash
	}

	if len(curve) > 0 {
		m.FinalEquity = curve[len(curve)-1].Value
		m.MaxDrawdown = curve.MaxDrawdown()
		returns := curve.GetReturns()
		m.SharpeRatio = calculateSharpeRatio(returns)
		m.SortinoRatio = calculateSortinoRatio(returns, curve.GetDownsideDeviation())
		m.Volatility = curve.GetVolatility() * math.Sqrt(tradingDaysPerYear)
		m.ValueAtRisk95 = calculateVaR(returns, 0.95)
	}
	return m
}

func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

func calculateSortinoRatio(returns []float64, downside float64) float64 {
	if len(returns) == 0 || downside == 0 {
		return 0
	}
	mean, _ := meanStd(returns)
	return mean / downside * math.Sqrt(tradingDaysPerYear)
}

func calculateProfitFactor(pnls []float64) float64 {
	grossProfit := 0.0
	grossLoss := 0.0
	for _, pl := range pnls {
		if pl > 0 {
			grossProfit += pl
		} else {
			grossLoss += math.Abs(pl)
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return profitFactorCap
		}
		return 0
	}
	return grossProfit / grossLoss
}

func calculateVaR(returns []float64, level float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return percentile(returns, 1.0-level)
}

func calculateTradeStats(pnls []float64) (int, int, float64, float64, float64, float64) {
	wins := 0
	losses := 0
	winSum := 0.0
	lossSum := 0.0
	largestWin := 0.0
	largestLoss := 0.0
	for _, pl := range pnls {
		if pl > 0 {
			wins++
			winSum += pl
			if pl > largestWin {
				largestWin = pl
			}
		} else if pl < 0 {
			losses++
			lossSum += pl
			if pl < largestLoss {
				largestLoss = pl
			}
		}
	}

	avgWin := 0.0
	avgLoss := 0.0
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}
	return wins, losses, avgWin, avgLoss, largestWin, largestLoss
}

func calculateWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// percentile returns the lower nearest-rank value at fraction p of values
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	idx := int(math.Floor(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
