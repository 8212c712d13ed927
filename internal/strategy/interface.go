package strategy

import (
	"github.com/yourusername/krx-quant/internal/indicator"
)

// SignalType is a strategy verdict
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Valid reports whether t is one of the known verdicts
func (t SignalType) Valid() bool {
	return t == SignalBuy || t == SignalSell || t == SignalHold
}

// Strategy scores an indicator snapshot into a verdict. Implementations must be
// stateless so one instance can be shared across goroutines.
type Strategy interface {
	Name() string
	// MinLookback is the fewest bars the strategy needs before it will evaluate
	MinLookback() int
	// Evaluate scores the snapshot taken at the last bar of window (closes, oldest-first)
	Evaluate(snapshot indicator.Snapshot, window []float64) Verdict
	GetParameters() map[string]interface{}
}

// Configurable is implemented by strategies built from Params
type Configurable interface {
	Params() Params
}

// Verdict is the outcome of a strategy evaluation
type Verdict struct {
	Type       SignalType `json:"type"`
	Confidence float64    `json:"confidence"`
	Reasons    []string   `json:"reasons"`
}

// Params configures the built-in strategies
type Params struct {
	Indicators indicator.Params `json:"indicators" mapstructure:"indicators"`
	Oversold   float64          `json:"oversold" mapstructure:"oversold"`
	Overbought float64          `json:"overbought" mapstructure:"overbought"`
}

// DefaultParams returns standard RSI thresholds with default indicator windows
func DefaultParams() Params {
	return Params{
		Indicators: indicator.DefaultParams(),
		Oversold:   30,
		Overbought: 70,
	}
}
