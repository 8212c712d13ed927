// Package indicator computes point-in-time technical indicators over oldest-first
// price and volume series.
//
// Every function is pure. A value that needs more history than supplied is returned
// as a nil pointer so it serializes as null and cannot leak into numeric comparisons.
// A non-finite value in the consumed window is treated the same way.
package indicator

import "math"

// SMA returns the simple moving average of the last period values
func SMA(values []float64, period int) *float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	return ptr(mean(values[len(values)-period:]))
}

// EMASeries returns the exponential moving average for every point from index period-1
// onwards. The series is seeded with the SMA of the first period values.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	prev := mean(values[:period])
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, prev)
	for _, v := range values[period:] {
		prev = (v-prev)*k + prev
		out = append(out, prev)
	}
	return out
}

// EMA returns the latest exponential moving average value
func EMA(values []float64, period int) *float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return nil
	}
	return ptr(series[len(series)-1])
}

// RSI computes the Relative Strength Index with Wilder smoothing.
// It needs at least period+1 closes. A window without losses yields 100.
func RSI(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period+1 || !AllFinite(closes) {
		return nil
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		g, l := change(closes[i-1], closes[i])
		gain += g
		loss += l
	}
	p := float64(period)
	avgGain := gain / p
	avgLoss := loss / p
	for i := period + 1; i < len(closes); i++ {
		g, l := change(closes[i-1], closes[i])
		avgGain = (avgGain*(p-1) + g) / p
		avgLoss = (avgLoss*(p-1) + l) / p
	}

	v := 100.0
	if avgLoss > 0 {
		rs := avgGain / avgLoss
		v = 100 - 100/(1+rs)
	}
	return ptr(math.Max(0, math.Min(100, v)))
}

// MACDResult holds the latest MACD values
type MACDResult struct {
	Line          *float64 `json:"line"`
	Signal        *float64 `json:"signal"`
	Histogram     *float64 `json:"histogram"`
	PrevHistogram *float64 `json:"prev_histogram"`
}

// MACD computes line = EMA(fast) - EMA(slow), signal = EMA(signalPeriod) of the line,
// histogram = line - signal. PrevHistogram is the histogram one bar earlier.
func MACD(closes []float64, fast, slow, signalPeriod int) MACDResult {
	var res MACDResult
	if fast <= 0 || slow <= fast || signalPeriod <= 0 || len(closes) < slow {
		return res
	}
	fastSeries := EMASeries(closes, fast)
	slowSeries := EMASeries(closes, slow)
	offset := slow - fast

	line := make([]float64, len(slowSeries))
	for i := range slowSeries {
		line[i] = fastSeries[i+offset] - slowSeries[i]
	}
	res.Line = ptr(line[len(line)-1])

	sig := EMASeries(line, signalPeriod)
	if len(sig) == 0 {
		return res
	}
	last := len(sig) - 1
	lineOffset := len(line) - len(sig)
	res.Signal = ptr(sig[last])
	res.Histogram = ptr(line[last+lineOffset] - sig[last])
	if last > 0 {
		res.PrevHistogram = ptr(line[last-1+lineOffset] - sig[last-1])
	}
	return res
}

// Bands holds Bollinger band values
type Bands struct {
	Upper  *float64 `json:"upper"`
	Middle *float64 `json:"middle"`
	Lower  *float64 `json:"lower"`
}

// Bollinger computes bands at SMA(period) ± k population standard deviations.
// A flat window collapses all three bands onto the mean.
func Bollinger(closes []float64, period int, k float64) Bands {
	if period <= 0 || len(closes) < period {
		return Bands{}
	}
	window := closes[len(closes)-period:]
	mid := mean(window)
	sd := stddev(window, mid)
	return Bands{
		Upper:  ptr(mid + k*sd),
		Middle: ptr(mid),
		Lower:  ptr(mid - k*sd),
	}
}

// VolumeSpike reports whether the latest volume exceeds multiplier times the average of
// the window bars before it. Short history or a zero average is not a spike.
func VolumeSpike(volumes []float64, window int, multiplier float64) bool {
	n := len(volumes)
	if window <= 0 || n < window+1 {
		return false
	}
	if !AllFinite(volumes[n-1-window:]) {
		return false
	}
	avg := mean(volumes[n-1-window : n-1])
	if avg <= 0 {
		return false
	}
	return volumes[n-1] > multiplier*avg
}

// MAType selects the moving average used for cross detection
type MAType string

const (
	MATypeSMA MAType = "sma"
	MATypeEMA MAType = "ema"
)

// MovingAverage dispatches to SMA or EMA
func MovingAverage(kind MAType, values []float64, period int) *float64 {
	if kind == MATypeEMA {
		return EMA(values, period)
	}
	return SMA(values, period)
}

// Cross detects a short/long moving average crossing between the previous bar and the
// current bar. At most one of golden and death is true.
func Cross(kind MAType, closes []float64, short, long int) (golden, death bool) {
	n := len(closes)
	if short <= 0 || long <= short || n < long+1 {
		return false, false
	}
	prevShort := MovingAverage(kind, closes[:n-1], short)
	prevLong := MovingAverage(kind, closes[:n-1], long)
	curShort := MovingAverage(kind, closes, short)
	curLong := MovingAverage(kind, closes, long)
	if prevShort == nil || prevLong == nil || curShort == nil || curLong == nil {
		return false, false
	}
	golden = *prevShort <= *prevLong && *curShort > *curLong
	death = *prevShort >= *prevLong && *curShort < *curLong
	return golden, death
}

func change(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, mu float64) float64 {
	if len(values) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		d := v - mu
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}

// AllFinite reports whether no value is NaN or infinite
func AllFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ptr returns nil for a non-finite result
func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
