// Package logger provides market-scan logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// ScanLogger provides dedicated logging for market scans.
type ScanLogger struct {
	*logrus.Entry
}

// NewScanLogger creates a new scan logger.
func NewScanLogger(baseLogger *logrus.Logger) *ScanLogger {
	return &ScanLogger{
		Entry: baseLogger.WithField("component", "scanner"),
	}
}

// LogScanStarted logs the start of a scan.
func (sl *ScanLogger) LogScanStarted(scanType string, minConfidence float64, limit, symbols int) {
	sl.WithFields(logrus.Fields{
		"scan_type":      scanType,
		"min_confidence": minConfidence,
		"limit":          limit,
		"symbols":        symbols,
	}).Info("Market scan started")
}

// LogSymbolSkipped logs a symbol dropped from a scan because of an error.
func (sl *ScanLogger) LogSymbolSkipped(stockCode, stage string, err error) {
	sl.WithFields(logrus.Fields{
		"stock_code": stockCode,
		"stage":      stage,
	}).WithError(err).Warn("Symbol skipped during scan")
}

// LogScanCompleted logs scan totals.
func (sl *ScanLogger) LogScanCompleted(scanType string, evaluated, skipped, matched, returned int, durationMs float64) {
	sl.WithFields(logrus.Fields{
		"scan_type":   scanType,
		"evaluated":   evaluated,
		"skipped":     skipped,
		"matched":     matched,
		"returned":    returned,
		"duration_ms": durationMs,
	}).Info("Market scan completed")
}
