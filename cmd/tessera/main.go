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
	"golang.org/x/sync/errgroup"

	"github.com/tessera-erp/tessera-erp/internal/app"
	"github.com/tessera-erp/tessera-erp/internal/documents"
	"github.com/tessera-erp/tessera-erp/internal/inventory"
	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
	"github.com/tessera-erp/tessera-erp/internal/observability"
	"github.com/tessera-erp/tessera-erp/internal/platform/cache"
	"github.com/tessera-erp/tessera-erp/internal/platform/db"
	"github.com/tessera-erp/tessera-erp/internal/shared"
	"github.com/tessera-erp/tessera-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Stock locks live in redis, so the server cannot run without it.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("redis connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	policy, err := inventory.ParseShortfallPolicy(cfg.ShortfallPolicy)
	if err != nil {
		logger.Error("parse shortfall policy", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	stockLocker := shared.NewStockLocker(redisClient, cfg.StockLockTTL)

	itemsRepo := items.NewRepository(pool)
	itemsService := items.NewService(itemsRepo)
	itemsHandler := items.NewHandler(logger, itemsService)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, stockLocker, idempotencyStore, auditLogger, metrics,
		inventory.ServiceConfig{ShortfallPolicy: policy}, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	documentsRepo := documents.NewRepository(pool)
	documentsService := documents.NewService(documentsRepo, inventoryService, itemsService, logger)
	documentsHandler := documents.NewHandler(logger, documentsService)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("init job client", slog.Any("error", err))
	} else {
		documentsService.SetEnqueuer(jobClient)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
	}
	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             pool,
		ItemsHandler:     itemsHandler,
		InventoryHandler: inventoryHandler,
		DocumentsHandler: documentsHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
