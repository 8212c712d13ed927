// Package metrics defines market-scan metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Scanner counter vectors
var (
	ScanRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_runs_total",
		Help:      "Total number of market scans by scan type and status",
	}, []string{"scan_type", "status"})

	ScanSymbolsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_symbols_skipped_total",
		Help:      "Total number of symbols skipped during scans because of fetch or evaluation errors",
	})
)

// Scanner histograms
var (
	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Duration of market scans in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})

	ScanResultsReturned = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_results_returned",
		Help:      "Number of results returned per scan",
		Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
	}, []string{"scan_type"})
)

// RecordScan records a completed scan.
// status should be one of: "success", "failure", "canceled"
func RecordScan(scanType, status string, durationSeconds float64, results int) {
	ScanRunsTotal.WithLabelValues(scanType, status).Inc()
	ScanDuration.Observe(durationSeconds)
	if status == "success" {
		ScanResultsReturned.WithLabelValues(scanType).Observe(float64(results))
	}
}

// RecordScanSkip records a symbol skipped during a scan.
func RecordScanSkip() {
	ScanSymbolsSkippedTotal.Inc()
}
