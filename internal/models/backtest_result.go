package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BacktestResult represents a persisted backtest run
type BacktestResult struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"user_id"`
	Name      string          `db:"name" json:"name"`
	Config    json.RawMessage `db:"config" json:"config"`
	Result    json.RawMessage `db:"result" json:"result"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// TradeSide is the direction of a simulated trade
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// BacktestTrade is one append-only ledger row belonging to a BacktestResult.
// PnL and PnLPct are only set on rows that close a position.
type BacktestTrade struct {
	ID           uuid.UUID `db:"id" json:"id"`
	BacktestID   uuid.UUID `db:"backtest_id" json:"backtest_id"`
	Seq          int       `db:"seq" json:"seq"`
	TradeDate    time.Time `db:"trade_date" json:"trade_date"`
	StockCode    string    `db:"stock_code" json:"stock_code"`
	Side         TradeSide `db:"side" json:"side"`
	Price        float64   `db:"price" json:"price"`
	Quantity     int64     `db:"quantity" json:"quantity"`
	Amount       float64   `db:"amount" json:"amount"`
	Commission   float64   `db:"commission" json:"commission"`
	Tax          float64   `db:"tax" json:"tax"`
	SignalReason string    `db:"signal_reason" json:"signal_reason"`
	PnL          *float64  `db:"pnl" json:"pnl"`
	PnLPct       *float64  `db:"pnl_pct" json:"pnl_pct"`
}
