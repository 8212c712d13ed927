// Package logger provides backtest logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// BacktestLogger provides dedicated logging for backtest runs.
type BacktestLogger struct {
	*logrus.Entry
}

// NewBacktestLogger creates a new backtest logger.
func NewBacktestLogger(baseLogger *logrus.Logger) *BacktestLogger {
	return &BacktestLogger{
		Entry: baseLogger.WithField("component", "backtest"),
	}
}

// LogRunStarted logs the start of a backtest run.
func (bl *BacktestLogger) LogRunStarted(name, strategy string, stockCodes []string, start, end time.Time, initialCash float64) {
	bl.WithFields(logrus.Fields{
		"name":         name,
		"strategy":     strategy,
		"stock_codes":  stockCodes,
		"start_date":   start.Format("2006-01-02"),
		"end_date":     end.Format("2006-01-02"),
		"initial_cash": initialCash,
	}).Info("Backtest started")
}

// LogTrade logs a simulated fill.
func (bl *BacktestLogger) LogTrade(stockCode, side string, date time.Time, price float64, quantity int64, reason string) {
	bl.WithFields(logrus.Fields{
		"stock_code": stockCode,
		"side":       side,
		"trade_date": date.Format("2006-01-02"),
		"price":      price,
		"quantity":   quantity,
		"reason":     reason,
	}).Debug("Simulated trade")
}

// LogSymbolFailed logs a symbol that aborted the run.
func (bl *BacktestLogger) LogSymbolFailed(stockCode string, err error) {
	bl.WithField("stock_code", stockCode).WithError(err).Error("Backtest symbol failed")
}

// LogRunCompleted logs headline metrics of a finished run.
func (bl *BacktestLogger) LogRunCompleted(name string, trades int, totalReturn, winRate, maxDrawdown float64, durationMs float64) {
	bl.WithFields(logrus.Fields{
		"name":         name,
		"total_trades": trades,
		"total_return": totalReturn,
		"win_rate":     winRate,
		"max_drawdown": maxDrawdown,
		"duration_ms":  durationMs,
	}).Info("Backtest completed")
}
