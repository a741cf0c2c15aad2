package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/enterprise-stock/cmd/enterprise/cli"
	"github.com/odyssey-erp/enterprise-stock/internal/app"
	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/history"
	"github.com/odyssey-erp/enterprise-stock/internal/ledger"
	"github.com/odyssey-erp/enterprise-stock/internal/locations"
	"github.com/odyssey-erp/enterprise-stock/internal/observability"
	"github.com/odyssey-erp/enterprise-stock/internal/platform/cache"
	"github.com/odyssey-erp/enterprise-stock/internal/platform/db"
	"github.com/odyssey-erp/enterprise-stock/internal/requests"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
	"github.com/odyssey-erp/enterprise-stock/internal/transfers"
	"github.com/odyssey-erp/enterprise-stock/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
		err := jobsCLI.Run(context.Background(), os.Args[2:], os.Stdout)
		if closeErr := jobsCLI.Close(); closeErr != nil {
			logger.Warn("jobs cli close", slog.Any("error", closeErr))
		}
		if err != nil {
			logger.Error("jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{
		Addr:        cfg.RedisAddr,
		PoolSize:    cfg.RedisPoolSize,
		DialTimeout: cfg.RedisDialTimeout,
		ReadTimeout: cfg.RedisReadTimeout,
	})
	if err != nil {
		logger.Warn("redis unavailable, stock cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	ceilings, err := cfg.Ceilings()
	if err != nil {
		logger.Error("approval ceilings", slog.Any("error", err))
		os.Exit(1)
	}
	gate := authz.NewStaticGate(cfg.Grants(), ceilings)
	authzMW := authz.Middleware{Gate: gate, Logger: logger}

	metrics := observability.NewMetrics()
	audit := shared.NewAuditLogger(pool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("job inspector close", slog.Any("error", err))
		}
	}()

	locationService := locations.NewService(locations.NewRepository(pool), gate, audit, logger)
	ledgerService := ledger.NewService(ledger.NewRepository(pool), gate, ledger.ServiceDeps{
		Locations: locationService,
		Cache:     cache.NewVersioned(redisClient, "stock", cfg.StockCacheTTL),
		Observer:  metrics,
		Audit:     audit,
		Logger:    logger,
	})
	historyReader := history.NewRecorder(pool)
	requestService := requests.NewService(requests.NewRepository(pool), historyReader, gate,
		requests.Config{DefaultSourceLocationID: cfg.DefaultSourceLocationID},
		requests.Deps{
			Locations: locationService,
			Ledger:    ledgerService,
			Notifier:  jobClient,
			Observer:  metrics,
			Logger:    logger,
		})
	transferService := transfers.NewService(transfers.NewRepository(pool), historyReader, gate, transfers.Deps{
		Locations: locationService,
		Ledger:    ledgerService,
		Notifier:  jobClient,
		Observer:  metrics,
		Logger:    logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		LocationsHandler: locations.NewHandler(logger, locationService, authzMW),
		LedgerHandler:    ledger.NewHandler(logger, ledgerService, authzMW),
		RequestsHandler:  requests.NewHandler(logger, requestService, authzMW),
		TransfersHandler: transfers.NewHandler(logger, transferService, authzMW),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
