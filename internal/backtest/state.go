package backtest

import (
	"math"
	"time"

	"github.com/yourusername/krx-quant/internal/models"
)

// PositionState is the per-symbol state machine position
type PositionState string

const (
	StateFlat PositionState = "FLAT"
	StateLong PositionState = "LONG"
)

// account is the independent sub-account replaying one symbol. It is owned by a
// single goroutine for the duration of a run.
type account struct {
	code           string
	cash           float64
	quantity       int64
	avgPrice       float64
	buyCommissions float64
	trades         []SimulatedTrade
	equity         []EquityPoint
}

func newAccount(code string, cash float64) *account {
	return &account{code: code, cash: cash}
}

func (a *account) state() PositionState {
	if a.quantity > 0 {
		return StateLong
	}
	return StateFlat
}

// buy opens or adds to the position. It returns false when the budget cannot cover
// a single share.
func (a *account) buy(date time.Time, price float64, cfg Config, reason string) (SimulatedTrade, bool) {
	if price <= 0 {
		return SimulatedTrade{}, false
	}
	budget := cfg.Sizing.Budget(a.cash)
	qty := int64(math.Floor(budget / (price * (1 + cfg.CommissionRate))))
	if qty < 1 {
		return SimulatedTrade{}, false
	}

	amount := price * float64(qty)
	commission := amount * cfg.CommissionRate
	a.cash -= amount + commission
	a.avgPrice = (a.avgPrice*float64(a.quantity) + amount) / float64(a.quantity+qty)
	a.quantity += qty
	a.buyCommissions += commission

	trade := SimulatedTrade{
		TradeDate:    date,
		StockCode:    a.code,
		Side:         models.TradeSideBuy,
		Price:        price,
		Quantity:     qty,
		Amount:       amount,
		Commission:   commission,
		SignalReason: reason,
	}
	a.trades = append(a.trades, trade)
	return trade, true
}

// sell closes the full position and realizes PnL net of the round trip costs
func (a *account) sell(date time.Time, price float64, cfg Config, reason string) (SimulatedTrade, bool) {
	if a.quantity == 0 {
		return SimulatedTrade{}, false
	}

	qty := a.quantity
	amount := price * float64(qty)
	commission := amount * cfg.CommissionRate
	tax := amount * cfg.TaxRate
	pnl := (price-a.avgPrice)*float64(qty) - (a.buyCommissions + commission + tax)
	pnlPct := pnl / (a.avgPrice * float64(qty))

	a.cash += amount - commission - tax
	a.quantity = 0
	a.avgPrice = 0
	a.buyCommissions = 0

	trade := SimulatedTrade{
		TradeDate:    date,
		StockCode:    a.code,
		Side:         models.TradeSideSell,
		Price:        price,
		Quantity:     qty,
		Amount:       amount,
		Commission:   commission,
		Tax:          tax,
		SignalReason: reason,
		PnL:          &pnl,
		PnLPct:       &pnlPct,
	}
	a.trades = append(a.trades, trade)
	return trade, true
}

// mark records the end-of-day equity of the sub-account
func (a *account) mark(date time.Time, close float64) {
	a.equity = append(a.equity, EquityPoint{
		Time:  date,
		Value: a.cash + float64(a.quantity)*close,
	})
}
