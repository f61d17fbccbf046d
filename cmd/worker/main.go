package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/tessera-erp/tessera-erp/internal/app"
	"github.com/tessera-erp/tessera-erp/internal/documents"
	"github.com/tessera-erp/tessera-erp/internal/inventory"
	jobmetrics "github.com/tessera-erp/tessera-erp/internal/jobs"
	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
	"github.com/tessera-erp/tessera-erp/internal/platform/db"
	"github.com/tessera-erp/tessera-erp/internal/shared"
	"github.com/tessera-erp/tessera-erp/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	policy, err := inventory.ParseShortfallPolicy(cfg.ShortfallPolicy)
	if err != nil {
		logger.Error("parse shortfall policy", slog.Any("error", err))
		os.Exit(1)
	}

	idempotencyStore := shared.NewIdempotencyStore(pool)

	itemsService := items.NewService(items.NewRepository(pool))
	inventoryService := inventory.NewService(inventory.NewRepository(pool), nil, idempotencyStore, shared.NewAuditLogger(pool), nil,
		inventory.ServiceConfig{ShortfallPolicy: policy}, logger)
	documentsService := documents.NewService(documents.NewRepository(pool), inventoryService, itemsService, logger)

	metrics := jobmetrics.NewMetrics(nil)
	rollupJob := jobs.NewRollupRecomputeJob(documentsService, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, metrics)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRollupRecompute, Handler: rollupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
