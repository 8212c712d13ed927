// Package metrics defines backtesting-specific metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backtest counter vectors
var (
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by status",
	}, []string{"status"})

	BacktestTradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backtest_trades_total",
		Help:      "Total number of simulated trades by side",
	}, []string{"side"})
)

// Backtest histograms
var (
	BacktestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backtest_duration_seconds",
		Help:      "Duration of backtest runs in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// Backtest gauge vectors
var (
	BacktestTotalReturn = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backtest_total_return",
		Help:      "Total return of the most recent backtest for each strategy",
	}, []string{"strategy"})
)

// RecordBacktestRun records a backtest run event.
// status should be one of: "success", "failure", "canceled"
func RecordBacktestRun(status string, durationSeconds float64) {
	BacktestRunsTotal.WithLabelValues(status).Inc()
	BacktestDuration.Observe(durationSeconds)
}

// RecordBacktestTrade records a simulated trade.
func RecordBacktestTrade(side string) {
	BacktestTradesTotal.WithLabelValues(side).Inc()
}

// UpdateBacktestReturn updates the most recent total return for a strategy.
func UpdateBacktestReturn(strategy string, totalReturn float64) {
	BacktestTotalReturn.WithLabelValues(strategy).Set(totalReturn)
}
