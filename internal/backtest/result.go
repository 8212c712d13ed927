package backtest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/krx-quant/internal/models"
)

// SimulatedTrade is one fill in the backtest ledger. PnL and PnLPct are set only on
// trades that close a position.
type SimulatedTrade struct {
	TradeDate    time.Time        `json:"trade_date"`
	StockCode    string           `json:"stock_code"`
	Side         models.TradeSide `json:"side"`
	Price        float64          `json:"price"`
	Quantity     int64            `json:"quantity"`
	Amount       float64          `json:"amount"`
	Commission   float64          `json:"commission"`
	Tax          float64          `json:"tax"`
	SignalReason string           `json:"signal_reason"`
	PnL          *float64         `json:"pnl"`
	PnLPct       *float64         `json:"pnl_pct"`
}

// Result is the outcome of one backtest run
type Result struct {
	Config      Config           `json:"config"`
	Trades      []SimulatedTrade `json:"trades"`
	Metrics     Metrics          `json:"metrics"`
	EquityCurve EquityCurve      `json:"equity_curve"`
}

// summary is the result JSON persisted alongside the trade rows
type summary struct {
	Metrics     Metrics     `json:"metrics"`
	EquityCurve EquityCurve `json:"equity_curve"`
}

// ToRecord converts the result into a persistence record and its ordered trade rows.
// Trade row IDs are derived from the backtest ID and sequence number.
func (r *Result) ToRecord(id uuid.UUID, userID string, createdAt time.Time) (*models.BacktestResult, []*models.BacktestTrade, error) {
	cfgJSON, err := json.Marshal(r.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode backtest config: %w", err)
	}
	resultJSON, err := json.Marshal(summary{Metrics: r.Metrics, EquityCurve: r.EquityCurve})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode backtest result: %w", err)
	}

	record := &models.BacktestResult{
		ID:        id,
		UserID:    userID,
		Name:      r.Config.Name,
		Config:    cfgJSON,
		Result:    resultJSON,
		CreatedAt: createdAt,
	}

	rows := make([]*models.BacktestTrade, len(r.Trades))
	for i, t := range r.Trades {
		seq := i + 1
		rows[i] = &models.BacktestTrade{
			ID:           uuid.NewSHA1(id, []byte(strconv.Itoa(seq))),
			BacktestID:   id,
			Seq:          seq,
			TradeDate:    t.TradeDate,
			StockCode:    t.StockCode,
			Side:         t.Side,
			Price:        t.Price,
			Quantity:     t.Quantity,
			Amount:       t.Amount,
			Commission:   t.Commission,
			Tax:          t.Tax,
			SignalReason: t.SignalReason,
			PnL:          copyFloat(t.PnL),
			PnLPct:       copyFloat(t.PnLPct),
		}
	}
	return record, rows, nil
}

// FromRecord rebuilds a result from a persisted record and its trade rows
func FromRecord(record *models.BacktestResult, rows []*models.BacktestTrade) (*Result, error) {
	if record == nil {
		return nil, fmt.Errorf("backtest record is required")
	}
	var cfg Config
	if err := json.Unmarshal(record.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode backtest config: %w", err)
	}
	var sum summary
	if err := json.Unmarshal(record.Result, &sum); err != nil {
		return nil, fmt.Errorf("failed to decode backtest result: %w", err)
	}

	ordered := append([]*models.BacktestTrade(nil), rows...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	trades := make([]SimulatedTrade, 0, len(ordered))
	for _, row := range ordered {
		if row.BacktestID != record.ID {
			return nil, fmt.Errorf("trade %s belongs to backtest %s, not %s", row.ID, row.BacktestID, record.ID)
		}
		trades = append(trades, SimulatedTrade{
			TradeDate:    row.TradeDate,
			StockCode:    row.StockCode,
			Side:         row.Side,
			Price:        row.Price,
			Quantity:     row.Quantity,
			Amount:       row.Amount,
			Commission:   row.Commission,
			Tax:          row.Tax,
			SignalReason: row.SignalReason,
			PnL:          copyFloat(row.PnL),
			PnLPct:       copyFloat(row.PnLPct),
		})
	}

	return &Result{
		Config:      cfg,
		Trades:      trades,
		Metrics:     sum.Metrics,
		EquityCurve: sum.EquityCurve,
	}, nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
