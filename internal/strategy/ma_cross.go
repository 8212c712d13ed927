package strategy

import (
	"math"

	"github.com/yourusername/krx-quant/internal/indicator"
)

// NameMACross identifies MACrossStrategy in configuration
const NameMACross = "ma_cross"

// MACrossStrategy trades moving average crossings: BUY on a golden cross, SELL on a
// death cross. Confidence grows with the MA spread and with momentum over the window.
type MACrossStrategy struct {
	BaseStrategy
	// FullSpread is the relative MA spread that earns the full spread weight
	FullSpread float64

	// RSI thresholds carried through Params, unused by the rules
	oversold, overbought float64
}

// NewMACrossStrategy creates the strategy from params
func NewMACrossStrategy(params Params) *MACrossStrategy {
	return &MACrossStrategy{
		BaseStrategy: BaseStrategy{Indicators: params.Indicators},
		FullSpread:   0.02,
		oversold:     params.Oversold,
		overbought:   params.Overbought,
	}
}

// Params returns the params the strategy was built from
func (s *MACrossStrategy) Params() Params {
	return Params{Indicators: s.Indicators, Oversold: s.oversold, Overbought: s.overbought}
}

// Name returns strategy name
func (s *MACrossStrategy) Name() string {
	return NameMACross
}

// MinLookback needs one bar before the long window to detect a crossing
func (s *MACrossStrategy) MinLookback() int {
	return s.Indicators.LongMA + 1
}

// GetParameters returns strategy parameters
func (s *MACrossStrategy) GetParameters() map[string]interface{} {
	return map[string]interface{}{
		"short_ma":    s.Indicators.ShortMA,
		"long_ma":     s.Indicators.LongMA,
		"ma_type":     string(s.Indicators.MAType),
		"full_spread": s.FullSpread,
	}
}

// Evaluate scores a snapshot
func (s *MACrossStrategy) Evaluate(snap indicator.Snapshot, window []float64) Verdict {
	if snap.ShortMA == nil || snap.LongMA == nil || *snap.LongMA == 0 {
		return s.Hold("insufficient data: moving averages unavailable")
	}
	if !snap.GoldenCross && !snap.DeathCross {
		return s.Hold("no moving average crossing")
	}

	spread := math.Abs(*snap.ShortMA-*snap.LongMA) / *snap.LongMA
	rising := len(window) >= 2 && window[len(window)-1] > window[0]

	rules := ruleSet{
		{weight: 0.6, ok: true, reason: "golden cross"},
		{weight: 0.2, ok: spread >= s.FullSpread, reason: "wide moving average spread"},
		{weight: 0.2, ok: rising, reason: "price higher than at window start"},
	}
	kind := SignalBuy
	if snap.DeathCross {
		kind = SignalSell
		rules[0].reason = "death cross"
		rules[2].ok = len(window) >= 2 && window[len(window)-1] < window[0]
		rules[2].reason = "price lower than at window start"
	}

	confidence, reasons := rules.score()
	// partial credit for a spread below the full-weight threshold
	if !rules[1].ok && s.FullSpread > 0 {
		confidence += 0.2 * spread / s.FullSpread
	}
	return Verdict{Type: kind, Confidence: s.ClampConfidence(confidence), Reasons: reasons}
}
