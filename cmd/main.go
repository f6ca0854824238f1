package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"flowscan/internal/adapters/config"
	"flowscan/internal/adapters/errors/noop"
	"flowscan/internal/adapters/errors/sentry"
	"flowscan/internal/adapters/polygon"
	"flowscan/internal/metrics"
	flowsvc "flowscan/internal/services/flow"
	"flowscan/internal/services/spot"
	"flowscan/internal/workers"
	flowworker "flowscan/internal/workers/flow"
	"flowscan/pkg/errors"
	"flowscan/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Register()
	if cfg.Metrics.Enabled {
		go func() {
			log.Infof("Metrics listening on %s", cfg.Metrics.Addr)
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				log.Warnf("Metrics server stopped: %v", err)
			}
		}()
	}

	client, err := polygon.NewClient(polygon.Config{
		APIKey:            cfg.Polygon.APIKey,
		BaseURL:           cfg.Polygon.BaseURL,
		RequestTimeout:    cfg.Polygon.RequestTimeout,
		MaxRetries:        cfg.Polygon.MaxRetries,
		RequestsPerMinute: cfg.Polygon.RequestsPerMinute,
	})
	if err != nil {
		log.Fatalf("Failed to init market-data client: %v", err)
	}

	resolver := spot.NewResolver(client)
	engine := flowsvc.NewEngine(engineConfig(cfg), nil)
	service := flowsvc.NewService(client, resolver, engine, scanConfig(cfg))

	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(flowworker.NewScanWorker(
		service,
		cfg.Workers.Universe,
		cfg.Workers.FlowScanInterval,
		cfg.Workers.FlowScanEnabled,
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Info("System initialized successfully")

	waitForShutdown(cancel, scheduler, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

func engineConfig(cfg *config.Config) flowsvc.Config {
	c := flowsvc.DefaultConfig()
	c.MinBlockPremium = decimalFromFloat(cfg.Classifier.MinBlockPremium, c.MinBlockPremium)
	c.MinSweepPremium = decimalFromFloat(cfg.Classifier.MinSweepPremium, c.MinSweepPremium)
	c.MinMultiLegPremium = decimalFromFloat(cfg.Classifier.MinMultiLegPremium, c.MinMultiLegPremium)
	c.ITMBandPct = decimalFromFloat(cfg.Classifier.ITMBandPct, c.ITMBandPct)
	if cfg.Classifier.MinSweepContracts > 0 {
		c.MinSweepContracts = cfg.Classifier.MinSweepContracts
	}
	return c
}

func scanConfig(cfg *config.Config) flowsvc.ScanConfig {
	c := flowsvc.DefaultScanConfig()
	if cfg.Scanner.BatchSize > 0 {
		c.BatchSize = cfg.Scanner.BatchSize
	}
	if cfg.Scanner.InterBatchDelay > 0 {
		c.InterBatchDelay = cfg.Scanner.InterBatchDelay
	}
	if cfg.Scanner.ChainBatchSize > 0 {
		c.ChainBatchSize = cfg.Scanner.ChainBatchSize
	}
	if cfg.Scanner.ChainBatchDelay > 0 {
		c.ChainBatchDelay = cfg.Scanner.ChainBatchDelay
	}
	if cfg.Scanner.ScanDeadline > 0 {
		c.ScanDeadline = cfg.Scanner.ScanDeadline
	}
	if cfg.Scanner.LookbackWindow > 0 {
		c.LookbackWindow = cfg.Scanner.LookbackWindow
	}
	if cfg.Scanner.MaxExpirations > 0 {
		c.MaxExpirations = cfg.Scanner.MaxExpirations
	}
	return c
}

func decimalFromFloat(v float64, fallback decimal.Decimal) decimal.Decimal {
	if v <= 0 {
		return fallback
	}
	return decimal.NewFromFloat(v)
}

// waitForShutdown blocks until an interrupt, then tears down in order
func waitForShutdown(cancel context.CancelFunc, scheduler *workers.Scheduler, tracker errors.Tracker, log *logger.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Infof("Received signal %s, shutting down...", sig)

	cancel()
	if err := scheduler.Stop(); err != nil {
		log.Warnf("Scheduler shutdown: %v", err)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	_ = tracker.Flush(flushCtx)

	log.Info("Shutdown complete")
}
