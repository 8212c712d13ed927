// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging for persisted backtests.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogBacktestSaved logs a persisted backtest result.
func (al *AuditLogger) LogBacktestSaved(backtestID, userID, name string, trades int, createdAt time.Time) {
	al.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"user_id":     userID,
		"name":        name,
		"trades":      trades,
		"created_at":  createdAt.Unix(),
	}).Info("Backtest result saved")
}

// LogBacktestTrade logs one persisted ledger row.
func (al *AuditLogger) LogBacktestTrade(backtestID string, seq int, stockCode, side string, tradeDate time.Time, price float64, quantity int64, pnl *float64) {
	fields := logrus.Fields{
		"backtest_id": backtestID,
		"seq":         seq,
		"stock_code":  stockCode,
		"side":        side,
		"trade_date":  tradeDate.Format("2006-01-02"),
		"price":       price,
		"quantity":    quantity,
	}
	if pnl != nil {
		fields["pnl"] = *pnl
	}
	al.WithFields(fields).Info("Backtest trade recorded")
}

// LogBacktestDeleted logs removal of a stored backtest.
func (al *AuditLogger) LogBacktestDeleted(backtestID, userID string) {
	al.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"user_id":     userID,
	}).Info("Backtest result deleted")
}

// LogConfigLoaded logs the effective configuration source at startup.
func (al *AuditLogger) LogConfigLoaded(path, environment string, secretsApplied bool) {
	al.WithFields(logrus.Fields{
		"config_path":     path,
		"environment":     environment,
		"secrets_applied": secretsApplied,
	}).Info("Configuration loaded")
}
