package strategy

import (
	"math"

	"github.com/yourusername/krx-quant/internal/indicator"
)

// BaseStrategy provides shared functionality for strategies
type BaseStrategy struct {
	Indicators indicator.Params
}

// MinLookback defaults to the history needed by RSI, the long moving average and the
// volume window
func (b *BaseStrategy) MinLookback() int {
	p := b.Indicators
	lookback := p.RSIPeriod + 1
	if p.LongMA+1 > lookback {
		lookback = p.LongMA + 1
	}
	if p.VolumeWindow+1 > lookback {
		lookback = p.VolumeWindow + 1
	}
	return lookback
}

// ClampConfidence ensures confidence in [0,1]
func (b *BaseStrategy) ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

// Hold builds a zero-confidence HOLD verdict
func (b *BaseStrategy) Hold(reasons ...string) Verdict {
	return Verdict{Type: SignalHold, Confidence: 0, Reasons: reasons}
}

// rule is one weighted sub-condition of a rule set
type rule struct {
	weight   float64
	required bool
	ok       bool
	reason   string
	failure  string
}

type ruleSet []rule

// satisfied reports whether every required rule holds
func (rs ruleSet) satisfied() bool {
	for _, r := range rs {
		if r.required && !r.ok {
			return false
		}
	}
	return true
}

// score returns satisfied weight over total weight and one reason per satisfied rule
func (rs ruleSet) score() (float64, []string) {
	total, got := 0.0, 0.0
	reasons := make([]string, 0, len(rs))
	for _, r := range rs {
		total += r.weight
		if r.ok {
			got += r.weight
			reasons = append(reasons, r.reason)
		}
	}
	if total == 0 {
		return 0, reasons
	}
	return got / total, reasons
}

// failures lists the unmet required rules
func (rs ruleSet) failures() []string {
	var out []string
	for _, r := range rs {
		if r.required && !r.ok && r.failure != "" {
			out = append(out, r.failure)
		}
	}
	return out
}

func above(v *float64, threshold *float64) bool {
	return v != nil && threshold != nil && *v > *threshold
}

func below(v *float64, threshold *float64) bool {
	return v != nil && threshold != nil && *v < *threshold
}
