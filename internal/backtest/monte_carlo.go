package backtest

import (
	"context"
	"fmt"
	"math/rand"
)

// defaultMonteCarloSeed keeps resampling reproducible when no seed is configured
const defaultMonteCarloSeed = 1

// MonteCarloConfig configures trade-sequence resampling
type MonteCarloConfig struct {
	Iterations  int     `json:"iterations"`
	Seed        int64   `json:"seed"`
	InitialCash float64 `json:"initial_cash"`
}

// MonteCarloResult summarizes the resampled final-equity distribution
type MonteCarloResult struct {
	Iterations          int                `json:"iterations"`
	MeanReturn          float64            `json:"mean_return"`
	StdReturn           float64            `json:"std_return"`
	VaR95               float64            `json:"var_95"`
	VaR99               float64            `json:"var_99"`
	ProbabilityOfProfit float64            `json:"probability_of_profit"`
	ProbabilityOfRuin   float64            `json:"probability_of_ruin"`
	ConfidenceIntervals map[string]float64 `json:"confidence_intervals"`
	Distribution        []float64          `json:"distribution"`
}

// RunMonteCarlo bootstraps the realized PnL of closed trades with replacement to
// estimate the spread of outcomes. A fixed seed yields an identical distribution.
func RunMonteCarlo(ctx context.Context, trades []SimulatedTrade, cfg MonteCarloConfig) (MonteCarloResult, error) {
	if cfg.InitialCash <= 0 {
		return MonteCarloResult{}, fmt.Errorf("initial cash must be positive")
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1000
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = defaultMonteCarloSeed
	}

	pnls := make([]float64, 0, len(trades))
	for _, t := range trades {
		if t.PnL != nil {
			pnls = append(pnls, *t.PnL)
		}
	}
	if len(pnls) == 0 {
		return MonteCarloResult{}, fmt.Errorf("no closed trades to resample")
	}

	rng := rand.New(rand.NewSource(seed))
	distribution := make([]float64, cfg.Iterations)
	for i := 0; i < cfg.Iterations; i++ {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return MonteCarloResult{}, err
			}
		}
		equity := cfg.InitialCash
		for range pnls {
			equity += pnls[rng.Intn(len(pnls))]
			if equity <= 0 {
				equity = 0
				break
			}
		}
		distribution[i] = equity
	}

	mean, std := meanStd(distribution)
	initial := cfg.InitialCash
	return MonteCarloResult{
		Iterations:          cfg.Iterations,
		MeanReturn:          (mean - initial) / initial,
		StdReturn:           std / initial,
		VaR95:               (percentile(distribution, 0.05) - initial) / initial,
		VaR99:               (percentile(distribution, 0.01) - initial) / initial,
		ProbabilityOfProfit: probabilityAbove(distribution, initial),
		ProbabilityOfRuin:   probabilityAtOrBelow(distribution, 0),
		ConfidenceIntervals: CalculateConfidenceIntervals(distribution, []float64{0.9, 0.95, 0.99}),
		Distribution:        distribution,
	}, nil
}

// CalculateConfidenceIntervals returns the width of each central interval
func CalculateConfidenceIntervals(distribution []float64, levels []float64) map[string]float64 {
	results := make(map[string]float64)
	for _, level := range levels {
		p := (1.0 - level) / 2.0
		low := percentile(distribution, p)
		high := percentile(distribution, 1.0-p)
		results[formatPercent(level)] = high - low
	}
	return results
}

func probabilityAbove(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v > threshold {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

func probabilityAtOrBelow(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v <= threshold {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

func formatPercent(level float64) string {
	return fmt.Sprintf("%.0f%%", level*100)
}
