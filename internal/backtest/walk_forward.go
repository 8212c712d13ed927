package backtest

import (
	"context"
	"fmt"
	"time"
)

// WalkForwardConfig configures rolling in-sample/out-of-sample windows
type WalkForwardConfig struct {
	TrainingWindowDays int `json:"training_window_days"`
	TestWindowDays     int `json:"test_window_days"`
	StepSizeDays       int `json:"step_size_days"`
	MinTradesPerWindow int `json:"min_trades_per_window"`
}

// WalkForwardWindow represents one walk-forward window
type WalkForwardWindow struct {
	WindowID     int       `json:"window_id"`
	TrainStart   time.Time `json:"train_start"`
	TrainEnd     time.Time `json:"train_end"`
	TestStart    time.Time `json:"test_start"`
	TestEnd      time.Time `json:"test_end"`
	TrainMetrics Metrics   `json:"train_metrics"`
	TestMetrics  Metrics   `json:"test_metrics"`
}

// WalkForwardResult represents walk-forward evaluation result
type WalkForwardResult struct {
	Windows           []WalkForwardWindow `json:"windows"`
	AggregatedMetrics Metrics             `json:"aggregated_metrics"`
	ConsistencyScore  float64             `json:"consistency_score"`
	OverfitScore      float64             `json:"overfit_score"`
}

// RunWalkForward slides a training window followed by a test window across the
// engine's configured date range and replays each with the same strategy
func RunWalkForward(ctx context.Context, engine *Engine, cfg WalkForwardConfig) (WalkForwardResult, error) {
	if engine == nil {
		return WalkForwardResult{}, fmt.Errorf("engine is required")
	}
	if cfg.TrainingWindowDays <= 0 || cfg.TestWindowDays <= 0 {
		return WalkForwardResult{}, fmt.Errorf("training and test windows must be positive")
	}
	if cfg.StepSizeDays <= 0 {
		cfg.StepSizeDays = cfg.TestWindowDays
	}

	start := engine.config.StartDate
	end := engine.config.EndDate
	windows := []WalkForwardWindow{}
	windowID := 0

	for current := start; current.Before(end); current = current.AddDate(0, 0, cfg.StepSizeDays) {
		trainStart := current
		trainEnd := trainStart.AddDate(0, 0, cfg.TrainingWindowDays-1)
		testStart := trainEnd.AddDate(0, 0, 1)
		testEnd := testStart.AddDate(0, 0, cfg.TestWindowDays-1)
		if testStart.After(end) {
			break
		}
		if testEnd.After(end) {
			testEnd = end
		}

		windowID++
		train, err := engine.RunRange(ctx, trainStart, trainEnd)
		if err != nil {
			return WalkForwardResult{}, fmt.Errorf("window %d training: %w", windowID, err)
		}
		test, err := engine.RunRange(ctx, testStart, testEnd)
		if err != nil {
			return WalkForwardResult{}, fmt.Errorf("window %d test: %w", windowID, err)
		}
		if !meetsTradeThreshold(cfg.MinTradesPerWindow, train, test) {
			continue
		}

		windows = append(windows, WalkForwardWindow{
			WindowID:     windowID,
			TrainStart:   trainStart,
			TrainEnd:     trainEnd,
			TestStart:    testStart,
			TestEnd:      testEnd,
			TrainMetrics: train.Metrics,
			TestMetrics:  test.Metrics,
		})
	}

	return WalkForwardResult{
		Windows:           windows,
		AggregatedMetrics: aggregateWalkForward(windows),
		ConsistencyScore:  CalculateConsistency(windows),
		OverfitScore:      calculateOverfitScore(windows),
	}, nil
}

func meetsTradeThreshold(minTrades int, train, test *Result) bool {
	if minTrades <= 0 {
		return true
	}
	return len(train.Trades) >= minTrades && len(test.Trades) >= minTrades
}

// CalculateConsistency is the fraction of windows with a positive out-of-sample return
func CalculateConsistency(windows []WalkForwardWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	profitable := 0
	for _, w := range windows {
		if w.TestMetrics.TotalReturn > 0 {
			profitable++
		}
	}
	return float64(profitable) / float64(len(windows))
}

func calculateOverfitScore(windows []WalkForwardWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	trainReturn := 0.0
	testReturn := 0.0
	for _, w := range windows {
		trainReturn += w.TrainMetrics.TotalReturn
		testReturn += w.TestMetrics.TotalReturn
	}
	if trainReturn == 0 {
		return 0
	}
	return (trainReturn - testReturn) / trainReturn
}

func aggregateWalkForward(windows []WalkForwardWindow) Metrics {
	if len(windows) == 0 {
		return Metrics{}
	}
	metrics := Metrics{}
	for _, w := range windows {
		metrics.TotalReturn += w.TestMetrics.TotalReturn
		metrics.SharpeRatio += w.TestMetrics.SharpeRatio
		metrics.MaxDrawdown += w.TestMetrics.MaxDrawdown
		metrics.WinRate += w.TestMetrics.WinRate
		metrics.TotalTrades += w.TestMetrics.TotalTrades
		metrics.ClosedTrades += w.TestMetrics.ClosedTrades
	}
	n := float64(len(windows))
	metrics.TotalReturn /= n
	metrics.SharpeRatio /= n
	metrics.MaxDrawdown /= n
	metrics.WinRate /= n
	return metrics
}
