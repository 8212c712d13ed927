package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
)

// GenerateConsoleReport formats a result for terminal output
func GenerateConsoleReport(result *Result) string {
	m := result.Metrics
	cfg := result.Config

	var builder strings.Builder
	builder.WriteString("Backtest Report\n")
	builder.WriteString("================\n")
	if cfg.Name != "" {
		builder.WriteString(fmt.Sprintf("Name: %s\n", cfg.Name))
	}
	builder.WriteString(fmt.Sprintf("Strategy: %s\n", cfg.Strategy))
	builder.WriteString(fmt.Sprintf("Symbols: %s\n", strings.Join(cfg.StockCodes, ", ")))
	builder.WriteString(fmt.Sprintf("Period: %s ~ %s\n", cfg.StartDate.Format("2006-01-02"), cfg.EndDate.Format("2006-01-02")))
	builder.WriteString(fmt.Sprintf("Initial Cash: %.0f\n", cfg.InitialCash))
	builder.WriteString(fmt.Sprintf("Final Equity: %.0f\n", m.FinalEquity))
	builder.WriteString(fmt.Sprintf("Realized PnL: %.0f\n", m.RealizedPnL))
	builder.WriteString(fmt.Sprintf("Total Return: %.2f%%\n", m.TotalReturn*100))
	builder.WriteString(fmt.Sprintf("Max Drawdown: %.2f%%\n", m.MaxDrawdown*100))
	builder.WriteString(fmt.Sprintf("Sharpe Ratio: %.2f\n", m.SharpeRatio))
	builder.WriteString(fmt.Sprintf("Trades: %d (closed %d, won %d, lost %d)\n", m.TotalTrades, m.ClosedTrades, m.WinningTrades, m.LosingTrades))
	builder.WriteString(fmt.Sprintf("Win Rate: %.2f%%\n", m.WinRate*100))
	builder.WriteString(fmt.Sprintf("Profit Factor: %.2f\n", m.ProfitFactor))
	builder.WriteString(fmt.Sprintf("Commission: %.0f  Tax: %.0f\n", m.TotalCommission, m.TotalTax))
	return builder.String()
}

var ledgerHeader = []string{
	"trade_date", "stock_code", "side", "price", "quantity", "amount",
	"commission", "tax", "pnl", "pnl_pct", "signal_reason",
}

// WriteTradeLedger writes the ordered ledger as CSV. PnL columns are empty on opening trades.
func WriteTradeLedger(w io.Writer, trades []SimulatedTrade) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ledgerHeader); err != nil {
		return err
	}
	for _, t := range trades {
		record := []string{
			t.TradeDate.Format("2006-01-02"),
			t.StockCode,
			string(t.Side),
			formatFloat(t.Price),
			strconv.FormatInt(t.Quantity, 10),
			formatFloat(t.Amount),
			formatFloat(t.Commission),
			formatFloat(t.Tax),
			optionalFloat(t.PnL),
			optionalFloat(t.PnLPct),
			t.SignalReason,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// GenerateCSVExport writes the trade ledger to outputPath
func GenerateCSVExport(result *Result, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteTradeLedger(file, result.Trades)
}

// RenderEquityChart draws the equity curve as a PNG
func RenderEquityChart(w io.Writer, result *Result) error {
	if len(result.EquityCurve) < 2 {
		return fmt.Errorf("equity curve needs at least two points to chart, got %d", len(result.EquityCurve))
	}
	times := make([]time.Time, len(result.EquityCurve))
	values := make([]float64, len(result.EquityCurve))
	for i, p := range result.EquityCurve {
		times[i] = p.Time
		values[i] = p.Value
	}

	title := "Equity Curve"
	if result.Config.Name != "" {
		title = result.Config.Name + " " + title
	}
	graph := chart.Chart{
		Title: title,
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Equity (KRW)",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Equity",
				XValues: times,
				YValues: values,
				Style: chart.Style{
					StrokeColor: chart.ColorBlue,
				},
			},
		},
	}
	return graph.Render(chart.PNG, w)
}

// GenerateEquityChart renders the equity curve PNG to outputPath
func GenerateEquityChart(result *Result, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()
	return RenderEquityChart(file, result)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
