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
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/parties"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr}); err != nil {
		logger.Warn("redis unavailable, report caching disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	reportCache := cache.NewVersioned(redisClient, "ledger:reports", cfg.ReportCacheTTL)
	if err := reportCache.Subscribe(ctx, func(version int64) {
		logger.Debug("report cache invalidated", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("subscribe report cache", slog.Any("error", err))
	}
	metrics := observability.NewMetrics()
	var openingCache reports.OpeningCache
	if redisClient != nil {
		openingCache = reports.NewRedisOpeningCache(redisClient, cfg.OpeningBalanceTTL).WithObserver(metrics.OpeningLookup)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts, cfg.BalanceMaxRetry)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("close job client", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("close queue inspector", slog.Any("error", err))
		}
	}()

	coaService := coa.NewService(coa.NewRepository(pool))
	voucherService := vouchers.NewService(vouchers.NewRepository(pool), jobClient, logger)
	voucherService.WithObserver(metrics)
	reportService := reports.NewService(reports.NewPGReader(pool), openingCache, reportCache, logger)
	partyService := parties.NewService(parties.NewRepository(pool), logger)
	periodService := periods.NewService(periods.NewRepository(pool), logger)

	router := app.NewRouter(app.RouterParams{
		Config:          cfg,
		COAHandler:      coa.NewHandler(logger, coaService),
		VouchersHandler: vouchers.NewHandler(logger, voucherService),
		ReportsHandler:  reports.NewHandler(logger, reportService),
		PartiesHandler:  parties.NewHandler(logger, partyService),
		PeriodsHandler:  periods.NewHandler(logger, periodService),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("ledger api listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
