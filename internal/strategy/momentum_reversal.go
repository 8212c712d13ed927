package strategy

import (
	"fmt"

	"github.com/yourusername/krx-quant/internal/indicator"
)

// NameMomentumReversal identifies MomentumReversalStrategy in configuration
const NameMomentumReversal = "momentum_reversal"

// MomentumReversalStrategy buys oversold stocks on heavy volume without a confirmed
// downtrend and sells overbought stocks whose trend is rolling over.
//
// BUY needs RSI below Oversold, a volume spike and either a golden cross or price above
// the long MA. SELL needs RSI above Overbought and either a death cross or a MACD
// histogram that turned negative on this bar. Bollinger and MACD momentum add optional
// weight. When both sides qualify the verdict is HOLD.
type MomentumReversalStrategy struct {
	BaseStrategy
	Oversold   float64
	Overbought float64
}

// NewMomentumReversalStrategy creates the strategy from params
func NewMomentumReversalStrategy(params Params) *MomentumReversalStrategy {
	return &MomentumReversalStrategy{
		BaseStrategy: BaseStrategy{Indicators: params.Indicators},
		Oversold:     params.Oversold,
		Overbought:   params.Overbought,
	}
}

// Name returns strategy name
func (s *MomentumReversalStrategy) Name() string {
	return NameMomentumReversal
}

// Params returns the params the strategy was built from
func (s *MomentumReversalStrategy) Params() Params {
	return Params{Indicators: s.Indicators, Oversold: s.Oversold, Overbought: s.Overbought}
}

// GetParameters returns strategy parameters
func (s *MomentumReversalStrategy) GetParameters() map[string]interface{} {
	return map[string]interface{}{
		"oversold":          s.Oversold,
		"overbought":        s.Overbought,
		"rsi_period":        s.Indicators.RSIPeriod,
		"short_ma":          s.Indicators.ShortMA,
		"long_ma":           s.Indicators.LongMA,
		"volume_window":     s.Indicators.VolumeWindow,
		"volume_multiplier": s.Indicators.VolumeMultiplier,
	}
}

// Evaluate scores a snapshot
func (s *MomentumReversalStrategy) Evaluate(snap indicator.Snapshot, window []float64) Verdict {
	if snap.RSI == nil || snap.CurrentPrice == nil {
		return s.Hold("insufficient data: RSI unavailable")
	}
	rsi := *snap.RSI

	buy := s.buyRules(snap, rsi)
	sell := s.sellRules(snap, rsi)
	buyOK := buy.satisfied()
	sellOK := sell[0].ok && (sell[1].ok || sell[2].ok)

	switch {
	case buyOK && sellOK:
		return s.Hold("conflicting BUY and SELL conditions")
	case buyOK:
		confidence, reasons := buy.score()
		return Verdict{Type: SignalBuy, Confidence: s.ClampConfidence(confidence), Reasons: reasons}
	case sellOK:
		confidence, reasons := sell.score()
		return Verdict{Type: SignalSell, Confidence: s.ClampConfidence(confidence), Reasons: reasons}
	}

	reasons := buy.failures()
	if sell[0].ok {
		reasons = append(reasons, "SELL: no death cross or MACD histogram turn")
	} else {
		reasons = append(reasons, sell[0].failure)
	}
	return s.Hold(reasons...)
}

func (s *MomentumReversalStrategy) buyRules(snap indicator.Snapshot, rsi float64) ruleSet {
	trendOK := snap.GoldenCross || above(snap.CurrentPrice, snap.LongMA)
	trendReason := "price above long moving average"
	if snap.GoldenCross {
		trendReason = "golden cross"
	}
	histRising := snap.MACDHistogram != nil && snap.MACDPrevHistogram != nil &&
		*snap.MACDHistogram > *snap.MACDPrevHistogram

	return ruleSet{
		{
			weight: 0.3, required: true, ok: rsi < s.Oversold,
			reason:  fmt.Sprintf("RSI %.1f below oversold %.0f", rsi, s.Oversold),
			failure: fmt.Sprintf("BUY: RSI %.1f not below %.0f", rsi, s.Oversold),
		},
		{
			weight: 0.2, required: true, ok: snap.VolumeSpike,
			reason:  fmt.Sprintf("volume above %.1fx average", s.Indicators.VolumeMultiplier),
			failure: "BUY: no volume spike",
		},
		{
			weight: 0.2, required: true, ok: trendOK,
			reason:  trendReason,
			failure: "BUY: downtrend not ruled out",
		},
		{
			weight: 0.15, ok: !above(snap.CurrentPrice, snap.BollingerLower) && snap.BollingerLower != nil,
			reason: "price at or below lower Bollinger band",
		},
		{
			weight: 0.15, ok: histRising,
			reason: "MACD histogram rising",
		},
	}
}

// sellRules order matters: RSI, death cross, MACD turn, then optional rules
func (s *MomentumReversalStrategy) sellRules(snap indicator.Snapshot, rsi float64) ruleSet {
	turnedNegative := snap.MACDHistogram != nil && snap.MACDPrevHistogram != nil &&
		*snap.MACDPrevHistogram >= 0 && *snap.MACDHistogram < 0

	return ruleSet{
		{
			weight: 0.35, required: true, ok: rsi > s.Overbought,
			reason:  fmt.Sprintf("RSI %.1f above overbought %.0f", rsi, s.Overbought),
			failure: fmt.Sprintf("SELL: RSI %.1f not above %.0f", rsi, s.Overbought),
		},
		{weight: 0.2, ok: snap.DeathCross, reason: "death cross"},
		{weight: 0.2, ok: turnedNegative, reason: "MACD histogram turned negative"},
		{
			weight: 0.15, ok: !below(snap.CurrentPrice, snap.BollingerUpper) && snap.BollingerUpper != nil,
			reason: "price at or above upper Bollinger band",
		},
		{weight: 0.1, ok: below(snap.CurrentPrice, snap.ShortMA), reason: "price below short moving average"},
	}
}
