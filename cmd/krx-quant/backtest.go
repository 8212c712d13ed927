package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/krx-quant/internal/backtest"
	"github.com/yourusername/krx-quant/internal/config"
	"github.com/yourusername/krx-quant/internal/marketdata"
	"github.com/yourusername/krx-quant/internal/service"
)

type backtestFlags struct {
	name        string
	codes       []string
	start       string
	end         string
	user        string
	save        bool
	jsonOutput  bool
	csvPath     string
	chartPath   string
	wfTrain     int
	wfTest      int
	wfStep      int
	wfMinTrades int
	mcRuns      int
	mcSeed      int64
}

func newBacktestCmd() *cobra.Command {
	f := &backtestFlags{}
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the configured strategy over historical daily bars",
		Example: `  krx-quant backtest --codes 005930,000660 --start 2023-01-02 --end 2023-12-28
  krx-quant backtest --codes 005930 --save --user alice --csv out/trades.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.name, "name", "", "Name stored with the result")
	cmd.Flags().StringSliceVar(&f.codes, "codes", nil, "Stock codes to replay")
	cmd.Flags().StringVar(&f.start, "start", "", "Start date YYYY-MM-DD (default backtest.start_date)")
	cmd.Flags().StringVar(&f.end, "end", "", "End date YYYY-MM-DD (default backtest.end_date)")
	cmd.Flags().StringVar(&f.user, "user", "", "Owner of the saved result")
	cmd.Flags().BoolVar(&f.save, "save", false, "Persist the result and its trade ledger")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print the full result as JSON instead of the report")
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "Write the trade ledger CSV to this path")
	cmd.Flags().StringVar(&f.chartPath, "chart", "", "Write the equity curve PNG to this path")
	cmd.Flags().IntVar(&f.wfTrain, "walk-forward-train", 0, "Walk-forward training window in days")
	cmd.Flags().IntVar(&f.wfTest, "walk-forward-test", 0, "Walk-forward test window in days")
	cmd.Flags().IntVar(&f.wfStep, "walk-forward-step", 0, "Walk-forward step in days (default test window)")
	cmd.Flags().IntVar(&f.wfMinTrades, "walk-forward-min-trades", 0, "Skip windows with fewer trades")
	cmd.Flags().IntVar(&f.mcRuns, "monte-carlo", 0, "Monte Carlo resampling iterations over closed trades")
	cmd.Flags().Int64Var(&f.mcSeed, "monte-carlo-seed", 0, "Monte Carlo seed")
	cmd.MarkFlagsRequiredTogether("walk-forward-train", "walk-forward-test")
	_ = cmd.MarkFlagRequired("codes")

	cmd.AddCommand(newBacktestListCmd(), newBacktestShowCmd(), newBacktestDeleteCmd())
	return cmd
}

func runBacktest(cmd *cobra.Command, f *backtestFlags) error {
	ctx := cmd.Context()
	btCfg, err := buildBacktestConfig(cfg, f.codes, f.start, f.end, f.name)
	if err != nil {
		return err
	}

	provider, closeProvider, err := newProvider()
	if err != nil {
		return err
	}
	defer closeProvider()

	var result *backtest.Result
	if f.save {
		svc, closeDB, err := newBacktestService(ctx, provider)
		if err != nil {
			return err
		}
		defer closeDB()
		saved, err := svc.RunAndSave(ctx, f.user, btCfg)
		if err != nil {
			return err
		}
		appLog.WithFields(logrus.Fields{"backtest_id": saved.ID, "user_id": saved.UserID}).Info("Backtest saved")
		result = saved.Result
	} else {
		engine, err := backtest.NewEngineFromConfig(provider, btCfg, appLog)
		if err != nil {
			return err
		}
		if result, err = engine.Run(ctx); err != nil {
			return err
		}
	}

	if err := writeBacktestOutputs(result, f); err != nil {
		return err
	}
	if f.jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), backtest.GenerateConsoleReport(result))
	}

	if f.wfTrain > 0 {
		engine, err := backtest.NewEngineFromConfig(provider, btCfg, appLog)
		if err != nil {
			return err
		}
		wf, err := backtest.RunWalkForward(ctx, engine, backtest.WalkForwardConfig{
			TrainingWindowDays: f.wfTrain,
			TestWindowDays:     f.wfTest,
			StepSizeDays:       f.wfStep,
			MinTradesPerWindow: f.wfMinTrades,
		})
		if err != nil {
			return fmt.Errorf("walk-forward failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Walk-forward: %d windows, consistency %.2f, overfit %.2f, mean test return %.2f%%\n",
			len(wf.Windows), wf.ConsistencyScore, wf.OverfitScore, wf.AggregatedMetrics.TotalReturn*100)
	}

	if f.mcRuns > 0 {
		mc, err := backtest.RunMonteCarlo(ctx, result.Trades, backtest.MonteCarloConfig{
			Iterations:  f.mcRuns,
			Seed:        f.mcSeed,
			InitialCash: btCfg.InitialCash,
		})
		if err != nil {
			return fmt.Errorf("monte carlo failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Monte Carlo (%d runs): mean return %.2f%%, VaR95 %.2f%%, P(profit) %.2f, P(ruin) %.2f\n",
			mc.Iterations, mc.MeanReturn*100, mc.VaR95*100, mc.ProbabilityOfProfit, mc.ProbabilityOfRuin)
	}
	return nil
}

func writeBacktestOutputs(result *backtest.Result, f *backtestFlags) error {
	csvPath, chartPath := f.csvPath, f.chartPath
	if csvPath == "" && chartPath == "" && cfg.Backtest.OutputPath != "" {
		csvPath = filepath.Join(cfg.Backtest.OutputPath, "trades.csv")
		chartPath = filepath.Join(cfg.Backtest.OutputPath, "equity.png")
	}
	if csvPath != "" {
		if err := backtest.GenerateCSVExport(result, csvPath); err != nil {
			return fmt.Errorf("failed to write trade ledger: %w", err)
		}
		appLog.WithField("path", csvPath).Info("Trade ledger written")
	}
	if chartPath != "" {
		if err := backtest.GenerateEquityChart(result, chartPath); err != nil {
			appLog.WithError(err).Warn("Equity chart not written")
		} else {
			appLog.WithField("path", chartPath).Info("Equity chart written")
		}
	}
	return nil
}

// buildBacktestConfig layers command line overrides over the backtest section
func buildBacktestConfig(c *config.Config, codes []string, start, end, name string) (backtest.Config, error) {
	bc := c.Backtest
	if start == "" {
		start = bc.StartDate
	}
	if end == "" {
		end = bc.EndDate
	}
	startDate, err := config.ParseDate(start)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("invalid start date: %w", err)
	}
	endDate, err := config.ParseDate(end)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("invalid end date: %w", err)
	}

	btCfg := backtest.Config{
		Name:           name,
		StockCodes:     codes,
		StartDate:      startDate,
		EndDate:        endDate,
		InitialCash:    bc.InitialCash,
		CommissionRate: bc.CommissionRate,
		TaxRate:        bc.TaxRate,
		Sizing: backtest.Sizing{
			Rule:    backtest.SizingRule(bc.SizingRule),
			Amount:  bc.SizingAmount,
			Percent: bc.SizingPercent,
		},
		ForceCloseAtEnd: bc.ForceCloseAtEnd,
		AllowScaleIn:    bc.AllowScaleIn,
		WarmupDays:      bc.WarmupDays,
		Strategy:        c.Signal.Strategy,
		StrategyParams:  strategyParams(c.Signal),
		Concurrency:     bc.Concurrency,
	}
	if err := btCfg.Validate(); err != nil {
		return backtest.Config{}, err
	}
	return btCfg, nil
}

// newBacktestService wires the result repository. provider may be nil for commands
// that only read stored results.
func newBacktestService(ctx context.Context, provider marketdata.Provider) (*service.BacktestService, func(), error) {
	repos, db, err := openRepositories(ctx)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if db != nil {
			db.Close()
		}
	}
	return service.NewBacktestService(provider, repos.BacktestResult, appLog), closeDB, nil
}

func newBacktestListCmd() *cobra.Command {
	var (
		user  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved backtests for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeAll, err := newBacktestService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeAll()

			records, err := svc.List(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", r.ID, r.CreatedAt.Format(time.RFC3339), r.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Owner of the backtests")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newBacktestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved backtest report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid backtest id: %w", err)
			}
			svc, closeAll, err := newBacktestService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeAll()

			saved, err := svc.Load(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), backtest.GenerateConsoleReport(saved.Result))
			return nil
		},
	}
}

func newBacktestDeleteCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved backtest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid backtest id: %w", err)
			}
			svc, closeAll, err := newBacktestService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeAll()
			return svc.Delete(cmd.Context(), user, id)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Owner of the backtest")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
