// Package main provides the krx-quant command line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/krx-quant/internal/config"
	"github.com/yourusername/krx-quant/internal/database"
	"github.com/yourusername/krx-quant/internal/indicator"
	"github.com/yourusername/krx-quant/internal/logger"
	"github.com/yourusername/krx-quant/internal/marketdata"
	"github.com/yourusername/krx-quant/internal/repository"
	"github.com/yourusername/krx-quant/internal/signal"
	"github.com/yourusername/krx-quant/internal/strategy"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	envFile    string
	appLog     *logrus.Logger
	cfg        *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultConfigPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before configuration")

	rootCmd.AddCommand(newSignalCmd(), newScanCmd(), newBacktestCmd(), newUniverseCmd(), newServeCmd(), newVersionCmd())
}

var rootCmd = &cobra.Command{
	Use:           "krx-quant",
	Short:         "Signal generation, market scanning and backtesting for KRX equities",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}
		if err := loadConfig(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		appLog = logger.NewLoggerWithOptions(logger.Options{
			Level:       cfg.App.LogLevel,
			Environment: cfg.App.Environment,
			File:        cfg.App.LogFile,
		})
		logger.NewAuditLogger(appLog).LogConfigLoaded(configFile, cfg.App.Environment, cfg.Secrets.SecretName != "")
		return nil
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadConfig(ctx context.Context) error {
	loaded, err := config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	if err := config.ReloadFromEnv(loaded); err != nil {
		return err
	}
	if err := config.ApplySecrets(ctx, loaded); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := config.Validate(loaded); err != nil {
		return err
	}
	if err := config.ValidateEnvironment(loaded); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// strategyParams maps the signal section onto strategy parameters
func strategyParams(sc config.SignalConfig) strategy.Params {
	return strategy.Params{
		Indicators: indicator.Params{
			RSIPeriod:        sc.RSIPeriod,
			MACDFast:         sc.MACDFast,
			MACDSlow:         sc.MACDSlow,
			MACDSignal:       sc.MACDSignal,
			BollingerPeriod:  sc.BollingerPeriod,
			BollingerK:       sc.BollingerK,
			ShortMA:          sc.ShortMA,
			LongMA:           sc.LongMA,
			MAType:           indicator.MAType(sc.MAType),
			VolumeWindow:     sc.VolumeWindow,
			VolumeMultiplier: sc.VolumeMultiplier,
		},
		Oversold:   sc.Oversold,
		Overbought: sc.Overbought,
	}
}

func newGenerator() (*signal.Generator, error) {
	params := strategyParams(cfg.Signal)
	strat, err := strategy.New(cfg.Signal.Strategy, params)
	if err != nil {
		return nil, err
	}
	return signal.NewGenerator(indicator.NewCalculator(params.Indicators), strat, appLog)
}

func newProvider() (marketdata.Provider, func(), error) {
	provider, closeProvider, err := marketdata.NewProvider(cfg.MarketData, appLog)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create market data provider: %w", err)
	}
	return provider, func() {
		if err := closeProvider(); err != nil {
			appLog.WithError(err).Warn("Failed to close market data provider")
		}
	}, nil
}

// openRepositories uses Postgres when a database is configured, memory otherwise
func openRepositories(ctx context.Context) (*repository.Repositories, *database.DB, error) {
	if !cfg.HasDatabase() {
		appLog.Info("No database configured; backtest results are kept in memory")
		return repository.NewMemoryRepositories(), nil, nil
	}
	db, err := database.Initialize(ctx, cfg, appLog)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	repos, err := repository.NewRepositories(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}
	return repos, db, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "krx-quant %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		},
	}
}
