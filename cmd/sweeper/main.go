package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openbridge/converter-core/pkg/config"
	"github.com/openbridge/converter-core/pkg/conversion/service"
	"github.com/openbridge/converter-core/pkg/conversionstore"
	"github.com/openbridge/converter-core/pkg/notify"
	"github.com/openbridge/converter-core/pkg/pgutil"
	"github.com/openbridge/converter-core/pkg/sweeper"
)

const reportInterval = 24 * time.Hour

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	notifier, err := notify.New(ctx, &cfg.Notify, logger)
	if err != nil {
		logger.Fatal("Failed to setup notifier", zap.Error(err))
	}

	svc := service.NewExpirer(conversionstore.NewStore(db), notifier, cfg.Expiry.Hours, logger)
	sw := sweeper.New(svc, &cfg.Expiry, logger)

	if cfg.Expiry.SweepOnce {
		if err := sw.SweepOnce(ctx); err != nil {
			logger.Fatal("Expiry sweep failed", zap.Error(err))
		}
		if err := svc.GenerateStatusReport(ctx, time.Now().UTC().Add(-reportInterval)); err != nil {
			logger.Error("Status report failed", zap.Error(err))
		}
		return
	}

	sw.Start()
	defer sw.Stop()

	reportTicker := time.NewTicker(reportInterval)
	defer reportTicker.Stop()

	logger.Info("Sweeper running",
		zap.Duration("sweep_interval", cfg.Expiry.SweepInterval),
		zap.Duration("report_interval", reportInterval))

	for {
		select {
		case <-reportTicker.C:
			reportCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if err := svc.GenerateStatusReport(reportCtx, time.Now().UTC().Add(-reportInterval)); err != nil {
				logger.Error("Status report failed", zap.Error(err))
			}
			cancel()
		case <-ctx.Done():
			logger.Info("Shutting down sweeper")
			return
		}
	}
}
