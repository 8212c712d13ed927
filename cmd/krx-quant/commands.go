package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/krx-quant/internal/marketdata"
	"github.com/yourusername/krx-quant/internal/models"
	"github.com/yourusername/krx-quant/internal/scanner"
	"github.com/yourusername/krx-quant/internal/signal"
	"github.com/yourusername/krx-quant/internal/strategy"
	"github.com/yourusername/krx-quant/internal/universe"
)

func newSignalCmd() *cobra.Command {
	var (
		prices  string
		volumes string
		code    string
		bars    int
	)
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Generate a signal from price/volume lists or a stock's recent history",
		Example: `  krx-quant signal --prices 100,101,102 --volumes 1000,1100,1200
  krx-quant signal --code 005930`,
		RunE: func(cmd *cobra.Command, args []string) error {
			generator, err := newGenerator()
			if err != nil {
				return err
			}

			var result signal.TradingSignal
			if code != "" {
				provider, closeProvider, err := newProvider()
				if err != nil {
					return err
				}
				defer closeProvider()

				if bars <= 0 {
					bars = cfg.Scanner.HistoryBars
				}
				history, err := provider.GetDailyPrices(cmd.Context(), code, bars)
				if err != nil {
					return fmt.Errorf("failed to fetch %s: %w", code, err)
				}
				result, err = generator.GenerateFromBars(history)
				if err != nil {
					return err
				}
			} else {
				p, err := parseFloatList(prices)
				if err != nil {
					return fmt.Errorf("invalid --prices: %w", err)
				}
				v, err := parseFloatList(volumes)
				if err != nil {
					return fmt.Errorf("invalid --volumes: %w", err)
				}
				result, err = generator.GenerateSignal(p, v)
				if err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&prices, "prices", "", "Comma separated closes, oldest first")
	cmd.Flags().StringVar(&volumes, "volumes", "", "Comma separated volumes, oldest first")
	cmd.Flags().StringVar(&code, "code", "", "Stock code whose recent daily bars are evaluated")
	cmd.Flags().IntVar(&bars, "bars", 0, "Daily bars fetched with --code (default scanner.history_bars)")
	cmd.MarkFlagsMutuallyExclusive("code", "prices")
	return cmd
}

func newScanCmd() *cobra.Command {
	var (
		scanType      string
		minConfidence float64
		limit         int
		codes         []string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Rank the stock universe by signal confidence",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("min-confidence") {
				minConfidence = cfg.Scanner.DefaultMinConfidence
			}
			if limit <= 0 {
				limit = cfg.Scanner.DefaultLimit
			}

			provider, closeProvider, err := newProvider()
			if err != nil {
				return err
			}
			defer closeProvider()
			s, err := newMarketScanner(provider, codes)
			if err != nil {
				return err
			}

			results, err := s.ScanMarket(cmd.Context(), strategy.SignalType(strings.ToUpper(scanType)), minConfidence, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVarP(&scanType, "type", "t", string(strategy.SignalBuy), "Signal to scan for: BUY or SELL")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Minimum confidence (default scanner.default_min_confidence)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (default scanner.default_limit)")
	cmd.Flags().StringSliceVar(&codes, "codes", nil, "Scan these codes instead of the configured markets")
	return cmd
}

// newMarketScanner builds a scanner over codes, or the configured markets when empty
func newMarketScanner(provider marketdata.Provider, codes []string) (*scanner.Scanner, error) {
	generator, err := newGenerator()
	if err != nil {
		return nil, err
	}

	var stocks []models.Stock
	if len(codes) > 0 {
		stocks = universe.Select(codes)
	} else {
		for _, m := range cfg.Scanner.Markets {
			stocks = append(stocks, universe.ByMarket(models.Market(strings.ToUpper(m)))...)
		}
	}

	return scanner.NewScanner(provider, generator, stocks, scanner.Config{
		HistoryBars: cfg.Scanner.HistoryBars,
		Concurrency: cfg.Scanner.Concurrency,
	}, appLog)
}

func newUniverseCmd() *cobra.Command {
	var market string
	cmd := &cobra.Command{
		Use:   "universe",
		Short: "List the stock universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			stocks := universe.All()
			if market != "" {
				stocks = universe.ByMarket(models.Market(strings.ToUpper(market)))
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tMARKET")
			for _, s := range stocks {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Code, s.Name, s.Market)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&market, "market", "m", "", "KOSPI or KOSDAQ")
	return cmd
}

func parseFloatList(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []float64{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite value %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
