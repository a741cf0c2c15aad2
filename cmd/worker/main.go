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

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/enterprise-stock/internal/app"
	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/history"
	jobmetrics "github.com/odyssey-erp/enterprise-stock/internal/jobs"
	"github.com/odyssey-erp/enterprise-stock/internal/platform/db"
	"github.com/odyssey-erp/enterprise-stock/internal/transfers"
	"github.com/odyssey-erp/enterprise-stock/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	// The audit only reads, so the gate is never consulted.
	transferService := transfers.NewService(transfers.NewRepository(pool), history.NewRecorder(pool),
		authz.NewStaticGate(nil, nil), transfers.Deps{Logger: logger})

	notifyHandler := &jobs.NotifyHandler{Logger: logger, Metrics: metrics}
	auditJob := &jobs.TransitAuditJob{
		Transfers: transferService,
		After:     cfg.TransitAlertAfter,
		Logger:    logger,
		Metrics:   metrics,
	}

	auditTask, err := jobs.NewTransitAuditTask(time.Now().UTC())
	if err != nil {
		logger.Error("build transit audit task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskWorkflowNotify, Handler: notifyHandler.Handle},
			{Type: jobs.TaskTransitAudit, Handler: auditJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.TransitAuditCron, Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}
