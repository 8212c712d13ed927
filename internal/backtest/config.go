package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/krx-quant/internal/strategy"
)

// Default KRX cost model
const (
	DefaultCommissionRate = 0.00015
	DefaultTaxRate        = 0.0018
	DefaultConcurrency    = 4
)

// ErrInvalidConfig is returned when a backtest config fails validation
var ErrInvalidConfig = errors.New("invalid backtest config")

// SizingRule decides how much cash a BUY commits
type SizingRule string

const (
	SizingAllIn       SizingRule = "all_in"
	SizingFixedAmount SizingRule = "fixed_amount"
	SizingPercent     SizingRule = "percent"
)

// Sizing is the position-sizing rule and its parameter
type Sizing struct {
	Rule    SizingRule `json:"rule"`
	Amount  float64    `json:"amount,omitempty"`
	Percent float64    `json:"percent,omitempty"`
}

// Budget returns the cash to commit from an account holding cash
func (s Sizing) Budget(cash float64) float64 {
	var budget float64
	switch s.Rule {
	case SizingFixedAmount:
		budget = s.Amount
	case SizingPercent:
		budget = cash * s.Percent
	default:
		budget = cash
	}
	if budget > cash {
		budget = cash
	}
	return budget
}

// Config describes one backtest run
type Config struct {
	Name            string          `json:"name"`
	StockCodes      []string        `json:"stock_codes"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	InitialCash     float64         `json:"initial_cash"`
	CommissionRate  float64         `json:"commission_rate"`
	TaxRate         float64         `json:"tax_rate"`
	Sizing          Sizing          `json:"sizing"`
	ForceCloseAtEnd bool            `json:"force_close_at_end"`
	AllowScaleIn    bool            `json:"allow_scale_in"`
	WarmupDays      int             `json:"warmup_days"`
	Strategy        string          `json:"strategy"`
	StrategyParams  strategy.Params `json:"strategy_params"`
	Concurrency     int             `json:"concurrency"`
}

// Validate rejects configs that cannot produce a meaningful replay
func (c Config) Validate() error {
	if len(c.StockCodes) == 0 {
		return fmt.Errorf("%w: at least one stock code is required", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.StockCodes))
	for _, code := range c.StockCodes {
		if code == "" {
			return fmt.Errorf("%w: empty stock code", ErrInvalidConfig)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("%w: duplicate stock code %s", ErrInvalidConfig, code)
		}
		seen[code] = struct{}{}
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidConfig)
	}
	if c.StartDate.After(c.EndDate) {
		return fmt.Errorf("%w: start date must not be after end date", ErrInvalidConfig)
	}
	if c.InitialCash <= 0 {
		return fmt.Errorf("%w: initial cash must be positive", ErrInvalidConfig)
	}
	if c.CommissionRate < 0 || c.CommissionRate > 0.1 {
		return fmt.Errorf("%w: commission rate must be between 0 and 0.1", ErrInvalidConfig)
	}
	if c.TaxRate < 0 || c.TaxRate > 0.1 {
		return fmt.Errorf("%w: tax rate must be between 0 and 0.1", ErrInvalidConfig)
	}
	switch c.Sizing.Rule {
	case SizingAllIn:
	case SizingFixedAmount:
		if c.Sizing.Amount <= 0 {
			return fmt.Errorf("%w: fixed_amount sizing requires a positive amount", ErrInvalidConfig)
		}
	case SizingPercent:
		if c.Sizing.Percent <= 0 || c.Sizing.Percent > 1 {
			return fmt.Errorf("%w: percent sizing requires 0 < percent <= 1", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sizing rule %q", ErrInvalidConfig, c.Sizing.Rule)
	}
	if c.WarmupDays < 0 {
		return fmt.Errorf("%w: warmup days cannot be negative", ErrInvalidConfig)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// withDefaults fills zero-valued optional fields
func (c Config) withDefaults() Config {
	if c.Sizing.Rule == "" {
		c.Sizing.Rule = SizingAllIn
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Strategy == "" {
		c.Strategy = strategy.NameMomentumReversal
	}
	if c.StrategyParams == (strategy.Params{}) {
		c.StrategyParams = strategy.DefaultParams()
	}
	return c
}

// historyStart is the first date fetched so indicators are primed on StartDate
func (c Config) historyStart() time.Time {
	return c.StartDate.AddDate(0, 0, -c.WarmupDays)
}

// inRange reports whether date falls on a tradable day in [StartDate, EndDate]
func (c Config) inRange(date time.Time) bool {
	day := dayKey(date)
	return day >= dayKey(c.StartDate) && day <= dayKey(c.EndDate)
}

func (c Config) clone() Config {
	c.StockCodes = append([]string(nil), c.StockCodes...)
	return c
}
