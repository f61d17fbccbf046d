package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tessera-erp/tessera-erp/internal/documents"
	jobmetrics "github.com/tessera-erp/tessera-erp/internal/jobs"
)

// OrderRecomputer re-derives one parent order status.
type OrderRecomputer interface {
	RecomputeOrder(ctx context.Context, orderID int64) (documents.OrderStatus, error)
}

// RollupRecomputeJob repairs parent order rollups that failed inline after a
// document completion. Recompute is idempotent, so redundant runs are safe.
type RollupRecomputeJob struct {
	service OrderRecomputer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewRollupRecomputeJob constructs the job.
func NewRollupRecomputeJob(service OrderRecomputer, logger *slog.Logger, metrics *jobmetrics.Metrics) *RollupRecomputeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RollupRecomputeJob{service: service, logger: logger, metrics: metrics}
}

// Handle processes TaskRollupRecompute tasks.
func (j *RollupRecomputeJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("rollup_recompute")
	var payload RollupRecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	status, err := j.service.RecomputeOrder(ctx, payload.OrderID)
	if err != nil {
		j.logger.Error("rollup recompute", slog.Int64("order_id", payload.OrderID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("rollup recomputed", slog.Int64("order_id", payload.OrderID), slog.String("status", string(status)))
	return tracker.End(nil)
}
