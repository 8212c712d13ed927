package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/krx-quant/internal/health"
	"github.com/yourusername/krx-quant/internal/marketdata"
	"github.com/yourusername/krx-quant/internal/metrics"
	"github.com/yourusername/krx-quant/internal/scheduler"
	"github.com/yourusername/krx-quant/internal/strategy"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics endpoints and run the scheduled market scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"version":     Version,
	}).Info("krx-quant starting")

	healthCfg := health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Commit:      GitCommit,
		Logger:      appLog,
		Checks:      make(map[string]health.Check),
	}
	if cfg.Metrics.Port > 0 {
		healthCfg.Port = strconv.Itoa(cfg.Metrics.Port)
	}
	if cfg.Metrics.Enabled {
		healthCfg.MetricsHandler = metrics.Handler()
		healthCfg.MetricsPath = cfg.Metrics.Path
	}

	if cfg.HasDatabase() {
		_, db, err := openRepositories(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		healthCfg.Checks["database"] = db.Ping
	}

	var sched *scheduler.Scheduler
	if cfg.Scanner.Schedule.Enabled {
		provider, closeProvider, err := newProvider()
		if err != nil {
			return err
		}
		defer closeProvider()
		if c, ok := provider.(marketdata.Checker); ok {
			healthCfg.Checks["market_data"] = c.Check
		}

		s, err := newMarketScanner(provider, nil)
		if err != nil {
			return err
		}
		loc, err := cfg.Scanner.Schedule.Location()
		if err != nil {
			return err
		}
		scanType := strategy.SignalType(cfg.Scanner.Schedule.ScanType)
		if scanType == "" {
			scanType = strategy.SignalBuy
		}

		sched = scheduler.NewScheduler(s, loc, appLog)
		if _, err := sched.ScheduleMarketScan(scheduler.ScanJob{
			Cron:          cfg.Scanner.Schedule.Cron,
			ScanType:      scanType,
			MinConfidence: cfg.Scanner.DefaultMinConfidence,
			Limit:         cfg.Scanner.DefaultLimit,
		}); err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}
		healthCfg.Scan = sched
		healthCfg.MaxScanAge = cfg.Scanner.Schedule.MaxAge()
		appLog.WithField("next_run", sched.GetNextRun()).Info("Market scan scheduled")
	}

	server := health.NewServer(healthCfg)
	server.SetReady(true)
	serveErr := server.Run(ctx)
	if serveErr != nil {
		appLog.WithError(serveErr).Error("Health server stopped")
	} else {
		appLog.Info("Shutdown signal received")
	}
	server.SetReady(false)

	if sched != nil {
		if err := sched.Stop(); err != nil {
			appLog.WithError(err).Error("Error during scheduler shutdown")
		}
	}
	appLog.Info("krx-quant shut down")
	return serveErr
}
