package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"mystore/backend/internal/cache"
	"mystore/backend/internal/config"
	"mystore/backend/internal/oemsync"
	"mystore/backend/internal/store/memory"
	pgstore "mystore/backend/internal/store/postgres"
)

func main() {
	modeFlag := flag.String("mode", "standard", "sync mode: standard, incremental or full")
	incremental := flag.Bool("incremental", false, "shorthand for -mode incremental")
	full := flag.Bool("full", false, "shorthand for -mode full")
	schedule := flag.String("schedule", "", "cron spec; run repeatedly instead of once (overrides SYNC_SCHEDULE)")
	skipAggregates := flag.Bool("skip-aggregates", false, "push products and receipts only")
	flag.Parse()

	config.LoadDotEnv()
	cfg := config.LoadSync()
	logger := config.NewLogger(cfg.LogLevel)

	if err := validateSyncConfig(cfg); err != nil {
		logger.Fatalf("invalid sync configuration: %v", err)
	}
	mode, err := resolveMode(*modeFlag, *incremental, *full)
	if err != nil {
		logger.Fatal(err)
	}
	if *schedule != "" {
		cfg.Schedule = *schedule
	}
	if *skipAggregates {
		cfg.AggregatesEnabled = false
	}
	dayZone, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatalf("invalid SYNC_TIMEZONE %q: %v", cfg.Timezone, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var source oemsync.Source
	closers := make([]func() error, 0, 2)
	if cfg.DatabaseURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.Fatalf("postgres unavailable: %v", err)
		}
		source = pg
		closers = append(closers, pg.Close)
		logger.Info("source: postgres")
	} else {
		source = memory.NewSeeded()
		logger.Warn("source: in-memory seed data (DATABASE_URL not set)")
	}

	var locker oemsync.Locker = oemsync.NoopLocker{}
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		closers = append(closers, rdb.Close)
		locker = oemsync.NewRedisLocker(rdb)
		logger.Info("run lock: redis")
	}

	client := oemsync.NewClient(oemsync.ClientConfig{
		BaseURL:        cfg.APIBaseURL,
		Username:       cfg.APIUsername,
		Password:       cfg.APIPassword,
		RequestTimeout: cfg.RequestTimeout,
		TokenAttempts:  cfg.TokenAttempts,
	}, logrus.NewEntry(logger))

	errorLog := oemsync.NewErrorLog(cfg.ErrorLogPath, nil)
	pipeline := oemsync.New(source, client, oemsync.Options{
		BatchSize:         cfg.BatchSize,
		TokenRefreshEvery: cfg.TokenRefreshEvery,
		ReceiptAttempts:   cfg.ReceiptAttempts,
		SafetyMargin:      cfg.SafetyMargin,
		DefaultWindow:     time.Duration(cfg.DefaultWindowDays) * 24 * time.Hour,
		ThrottleEvery:     cfg.ThrottleEvery,
		ThrottlePause:     cfg.ThrottlePause,
		LockTTL:           cfg.LockTTL,
		Watermark:         oemsync.NewWatermark(cfg.WatermarkPath),
		ErrorLog:          errorLog,
		Locker:            locker,
		Logger:            logrus.NewEntry(logger),
		Aggregates: oemsync.AggregateOptions{
			Disabled:      !cfg.AggregatesEnabled,
			LowStock:      cfg.LowStockThreshold,
			CriticalStock: cfg.CriticalStockThreshold,
			SummaryDays:   cfg.SummaryDays,
			TopSellerDays: cfg.TopSellerDays,
			Location:      dayZone,
		},
	})

	var exitCode int
	if cfg.Schedule == "" {
		exitCode = runOnce(ctx, pipeline, mode, errorLog.Path(), logger)
	} else {
		exitCode = runScheduled(ctx, cfg.Schedule, pipeline, mode, errorLog.Path(), logger)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			config.LogError(logger, "main", "main", "close", nil, err)
		}
	}
	stop()
	os.Exit(exitCode)
}

// runOnce performs one sync and prints its summary. The exit code is 1 when
// the run aborted or any record failed.
func runOnce(ctx context.Context, pipeline *oemsync.Pipeline, mode oemsync.Mode, errorLogPath string, logger *logrus.Logger) int {
	report, err := pipeline.Run(ctx, mode)
	if report != nil {
		report.Summary(os.Stdout, errorLogPath)
	}
	if err != nil {
		if errors.Is(err, oemsync.ErrRunInProgress) {
			logger.Warn("another sync run is in progress; nothing to do")
			return 0
		}
		logger.WithError(err).Error("sync run aborted")
		return 1
	}
	if report.Failed() {
		return 1
	}
	return 0
}

func runScheduled(ctx context.Context, spec string, pipeline *oemsync.Pipeline, mode oemsync.Mode, errorLogPath string, logger *logrus.Logger) int {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := scheduler.AddFunc(spec, func() {
		runOnce(ctx, pipeline, mode, errorLogPath, logger)
	})
	if err != nil {
		logger.Errorf("invalid schedule %q: %v", spec, err)
		return 1
	}
	scheduler.Start()
	logger.Infof("sync scheduled (%s, mode %s)", spec, mode)

	<-ctx.Done()
	<-scheduler.Stop().Done()
	logger.Info("sync scheduler stopped")
	return 0
}

func resolveMode(raw string, incremental bool, full bool) (oemsync.Mode, error) {
	if incremental && full {
		return "", fmt.Errorf("-incremental and -full cannot be combined")
	}
	switch {
	case incremental:
		return oemsync.ModeIncremental, nil
	case full:
		return oemsync.ModeFull, nil
	}
	return oemsync.ParseMode(raw)
}

func validateSyncConfig(cfg config.SyncConfig) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("OEM_API_BASE_URL must be set")
	}
	if cfg.APIUsername == "" || cfg.APIPassword == "" {
		return fmt.Errorf("OEM_API_USERNAME and OEM_API_PASSWORD must be set")
	}
	if cfg.WatermarkPath == "" || cfg.ErrorLogPath == "" {
		return fmt.Errorf("SYNC_WATERMARK_PATH and SYNC_ERROR_LOG_PATH cannot be empty")
	}
	return nil
}
