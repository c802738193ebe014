package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gondolapp/gondolapp/internal/app"
	"github.com/gondolapp/gondolapp/internal/expiration"
	"github.com/gondolapp/gondolapp/internal/integrity"
	"github.com/gondolapp/gondolapp/internal/localstore"
	"github.com/gondolapp/gondolapp/internal/observability"
	"github.com/gondolapp/gondolapp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	switch cfg.StoreDriver {
	case app.StoreDriverMemory:
		logger.Warn("memory store selected; the worker sees its own empty store, not the API node's")
	case app.StoreDriverBadger:
		logger.Warn("badger store selected; the directory is locked by one process, give the worker its own BADGER_DIR or run the API with postgres")
	}
	store, closeStore, err := localstore.Open(ctx, localstore.Options{
		Driver:   cfg.StoreDriver,
		DSN:      cfg.PGDSN,
		MaxConns: cfg.PGMaxConns,
		Dir:      cfg.BadgerDir,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("open local store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	metrics := observability.NewMetrics()
	integrityJob := jobs.NewIntegrityScanJob(integrity.NewService(store, logger), logger, metrics.Jobs())
	sweepJob := jobs.NewExpirationSweepJob(expiration.NewService(store, store, logger), logger, metrics.Jobs())

	scanTask, err := jobs.NewIntegrityScanTask(false)
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewExpirationSweepTask(time.Now().UTC())
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerOptions{
		Redis:  cfg.AsynqRedis(),
		Logger: logger,
		Jobs:   []jobs.Job{integrityJob, sweepJob},
		Schedules: []jobs.Schedule{
			{Cron: "0 3 * * *", Task: scanTask},
			{Cron: "0 * * * *", Task: sweepTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if addr := cfg.WorkerMetricsAddr; addr != "" {
		metricsServer := &http.Server{Addr: addr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			_ = metricsServer.Close()
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
