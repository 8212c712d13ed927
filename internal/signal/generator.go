// Package signal turns price/volume history into a trading signal by combining the
// indicator calculator with a configured strategy.
package signal

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/krx-quant/internal/indicator"
	"github.com/yourusername/krx-quant/internal/metrics"
	"github.com/yourusername/krx-quant/internal/models"
	"github.com/yourusername/krx-quant/internal/strategy"
)

// Reasons attached to HOLD signals produced without evaluating the strategy
const (
	InsufficientDataReason = "insufficient data"
	NonFiniteInputReason   = "non-finite price or volume"
)

// TradingSignal is the generator output
type TradingSignal struct {
	Signal     strategy.SignalType `json:"signal"`
	Confidence float64             `json:"confidence"`
	Reason     string              `json:"reason"`
	Reasons    []string            `json:"reasons"`
	Indicators indicator.Snapshot  `json:"indicators"`
}

// Generator computes signals for one series at a time. It is safe for concurrent use.
type Generator struct {
	calculator indicator.Calculator
	strategy   strategy.Strategy
	logger     *logrus.Logger
}

// NewGenerator creates a signal generator
func NewGenerator(calc indicator.Calculator, strat strategy.Strategy, logger *logrus.Logger) (*Generator, error) {
	if strat == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Generator{calculator: calc, strategy: strat, logger: logger}, nil
}

// Strategy returns the configured strategy
func (g *Generator) Strategy() strategy.Strategy {
	return g.strategy
}

// IndicatorParams returns the windows the generator computes indicators with
func (g *Generator) IndicatorParams() indicator.Params {
	return g.calculator.Params()
}

// GenerateSignal evaluates oldest-first prices and volumes. Mismatched lengths are a
// caller error. A NaN or infinite value, or history shorter than the strategy
// lookback, yields HOLD with zero confidence without computing indicators.
func (g *Generator) GenerateSignal(prices, volumes []float64) (TradingSignal, error) {
	if len(prices) != len(volumes) {
		return TradingSignal{}, fmt.Errorf("%w: %d prices, %d volumes", models.ErrLengthMismatch, len(prices), len(volumes))
	}
	if !indicator.AllFinite(prices) || !indicator.AllFinite(volumes) {
		g.logger.WithField("strategy", g.strategy.Name()).Warn("Non-finite input, holding")
		return holdSignal(NonFiniteInputReason), nil
	}
	if len(prices) < g.strategy.MinLookback() {
		return holdSignal(InsufficientDataReason), nil
	}

	snap := g.calculator.Snapshot(prices, volumes)
	verdict := g.strategy.Evaluate(snap, prices)
	if !verdict.Type.Valid() {
		return TradingSignal{}, fmt.Errorf("strategy %s returned invalid signal %q", g.strategy.Name(), verdict.Type)
	}
	if verdict.Type == strategy.SignalHold {
		verdict.Confidence = 0
	}

	g.logger.WithFields(logrus.Fields{
		"strategy":   g.strategy.Name(),
		"signal":     verdict.Type,
		"confidence": verdict.Confidence,
		"bars":       len(prices),
	}).Debug("Signal generated")
	metrics.RecordSignal(string(verdict.Type))

	return TradingSignal{
		Signal:     verdict.Type,
		Confidence: verdict.Confidence,
		Reason:     strings.Join(verdict.Reasons, "; "),
		Reasons:    verdict.Reasons,
		Indicators: snap,
	}, nil
}

// GenerateFromBars evaluates a bar series
func (g *Generator) GenerateFromBars(bars []models.PriceBar) (TradingSignal, error) {
	return g.GenerateSignal(models.Closes(bars), models.Volumes(bars))
}

func holdSignal(reason string) TradingSignal {
	metrics.RecordSignal(string(strategy.SignalHold))
	return TradingSignal{
		Signal:     strategy.SignalHold,
		Confidence: 0,
		Reason:     reason,
		Reasons:    []string{reason},
	}
}
