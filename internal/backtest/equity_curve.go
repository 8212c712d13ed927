package backtest

import (
	"bytes"
	"math"
	"sort"
	"strconv"
	"time"
)

// EquityPoint is the combined portfolio value at one trading date
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Drawdown float64   `json:"drawdown"`
	DailyPnL float64   `json:"daily_pnl"`
}

// EquityCurve represents a time-series of equity points
type EquityCurve []EquityPoint

// mergeEquity sums sub-account curves over the union of their dates. A sub-account
// contributes its starting cash before its first bar and its last value after its
// final bar.
func mergeEquity(curves [][]EquityPoint, startingCash []float64) EquityCurve {
	dateSet := make(map[time.Time]struct{})
	for _, curve := range curves {
		for _, p := range curve {
			dateSet[p.Time] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	cursor := make([]int, len(curves))
	last := append([]float64(nil), startingCash...)
	initial := 0.0
	for _, c := range startingCash {
		initial += c
	}

	out := make(EquityCurve, 0, len(dates))
	peak := initial
	prev := initial
	for _, d := range dates {
		total := 0.0
		for i, curve := range curves {
			for cursor[i] < len(curve) && !curve[cursor[i]].Time.After(d) {
				last[i] = curve[cursor[i]].Value
				cursor[i]++
			}
			total += last[i]
		}
		if total > peak {
			peak = total
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - total) / peak
		}
		out = append(out, EquityPoint{Time: d, Value: total, Drawdown: drawdown, DailyPnL: total - prev})
		prev = total
	}
	return out
}

// GetReturns calculates periodic returns from equity curve
func (e EquityCurve) GetReturns() []float64 {
	if len(e) < 2 {
		return []float64{}
	}
	returns := make([]float64, 0, len(e)-1)
	for i := 1; i < len(e); i++ {
		prev := e[i-1].Value
		curr := e[i].Value
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (curr-prev)/prev)
	}
	return returns
}

// GetVolatility calculates standard deviation of returns
func (e EquityCurve) GetVolatility() float64 {
	_, std := meanStd(e.GetReturns())
	return std
}

// GetDownsideDeviation calculates downside deviation of returns
func (e EquityCurve) GetDownsideDeviation() float64 {
	returns := e.GetReturns()
	variance := 0.0
	count := 0
	for _, r := range returns {
		if r < 0 {
			variance += r * r
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(variance / float64(count))
}

// MaxDrawdown is the largest peak-to-trough decline as a fraction of the peak
func (e EquityCurve) MaxDrawdown() float64 {
	maxDD := 0.0
	for _, p := range e {
		if p.Drawdown > maxDD {
			maxDD = p.Drawdown
		}
	}
	return maxDD
}

// ToCSV exports equity curve to CSV string
func (e EquityCurve) ToCSV() string {
	var buf bytes.Buffer
	buf.WriteString("date,value,drawdown,daily_pnl\n")
	for _, point := range e {
		buf.WriteString(point.Time.Format("2006-01-02"))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Value))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Drawdown))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.DailyPnL))
		buf.WriteString("\n")
	}
	return buf.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
