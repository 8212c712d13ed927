package indicator

import "fmt"

// Params configures indicator windows
type Params struct {
	RSIPeriod        int     `json:"rsi_period" mapstructure:"rsi_period"`
	MACDFast         int     `json:"macd_fast" mapstructure:"macd_fast"`
	MACDSlow         int     `json:"macd_slow" mapstructure:"macd_slow"`
	MACDSignal       int     `json:"macd_signal" mapstructure:"macd_signal"`
	BollingerPeriod  int     `json:"bollinger_period" mapstructure:"bollinger_period"`
	BollingerK       float64 `json:"bollinger_k" mapstructure:"bollinger_k"`
	ShortMA          int     `json:"short_ma" mapstructure:"short_ma"`
	LongMA           int     `json:"long_ma" mapstructure:"long_ma"`
	MAType           MAType  `json:"ma_type" mapstructure:"ma_type"`
	VolumeWindow     int     `json:"volume_window" mapstructure:"volume_window"`
	VolumeMultiplier float64 `json:"volume_multiplier" mapstructure:"volume_multiplier"`
}

// DefaultParams returns the standard indicator windows
func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		BollingerPeriod:  20,
		BollingerK:       2,
		ShortMA:          5,
		LongMA:           20,
		MAType:           MATypeSMA,
		VolumeWindow:     20,
		VolumeMultiplier: 2.0,
	}
}

// Validate checks window relationships
func (p Params) Validate() error {
	if p.RSIPeriod <= 0 || p.BollingerPeriod <= 0 || p.VolumeWindow <= 0 {
		return fmt.Errorf("indicator periods must be positive")
	}
	if p.MACDFast <= 0 || p.MACDSlow <= p.MACDFast || p.MACDSignal <= 0 {
		return fmt.Errorf("macd requires 0 < fast < slow and a positive signal period")
	}
	if p.ShortMA <= 0 || p.LongMA <= p.ShortMA {
		return fmt.Errorf("short moving average must be shorter than long moving average")
	}
	if p.MAType != MATypeSMA && p.MAType != MATypeEMA {
		return fmt.Errorf("unknown moving average type %q", p.MAType)
	}
	if p.VolumeMultiplier <= 0 || p.BollingerK < 0 {
		return fmt.Errorf("volume multiplier must be positive and bollinger k non-negative")
	}
	return nil
}

// MinLookback is the number of bars needed for every snapshot field to be present
func (p Params) MinLookback() int {
	return maxInt(
		p.RSIPeriod+1,
		p.MACDSlow+p.MACDSignal,
		p.BollingerPeriod,
		p.LongMA+1,
		p.VolumeWindow+1,
	)
}

// Snapshot is the indicator state at the latest bar
type Snapshot struct {
	RSI               *float64 `json:"rsi"`
	MACDLine          *float64 `json:"macd_line"`
	MACDSignal        *float64 `json:"macd_signal"`
	MACDHistogram     *float64 `json:"macd_histogram"`
	MACDPrevHistogram *float64 `json:"macd_prev_histogram"`
	BollingerUpper    *float64 `json:"bollinger_upper"`
	BollingerMiddle   *float64 `json:"bollinger_middle"`
	BollingerLower    *float64 `json:"bollinger_lower"`
	ShortMA           *float64 `json:"short_ma"`
	LongMA            *float64 `json:"long_ma"`
	VolumeSpike       bool     `json:"volume_spike"`
	GoldenCross       bool     `json:"golden_cross"`
	DeathCross        bool     `json:"death_cross"`
	CurrentPrice      *float64 `json:"current_price"`
}

// Calculator produces snapshots for a fixed set of params. It holds no mutable state.
type Calculator struct {
	params Params
}

// NewCalculator creates a calculator
func NewCalculator(params Params) Calculator {
	return Calculator{params: params}
}

// Params returns the calculator configuration
func (c Calculator) Params() Params {
	return c.params
}

// Snapshot computes every indicator on the latest bar of equal-length series
func (c Calculator) Snapshot(closes, volumes []float64) Snapshot {
	p := c.params
	macd := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	bands := Bollinger(closes, p.BollingerPeriod, p.BollingerK)
	golden, death := Cross(p.MAType, closes, p.ShortMA, p.LongMA)

	snap := Snapshot{
		RSI:               RSI(closes, p.RSIPeriod),
		MACDLine:          macd.Line,
		MACDSignal:        macd.Signal,
		MACDHistogram:     macd.Histogram,
		MACDPrevHistogram: macd.PrevHistogram,
		BollingerUpper:    bands.Upper,
		BollingerMiddle:   bands.Middle,
		BollingerLower:    bands.Lower,
		ShortMA:           MovingAverage(p.MAType, closes, p.ShortMA),
		LongMA:            MovingAverage(p.MAType, closes, p.LongMA),
		VolumeSpike:       VolumeSpike(volumes, p.VolumeWindow, p.VolumeMultiplier),
		GoldenCross:       golden,
		DeathCross:        death,
	}
	if len(closes) > 0 {
		snap.CurrentPrice = ptr(closes[len(closes)-1])
	}
	return snap
}

func maxInt(values ...int) int {
	m := 0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}
