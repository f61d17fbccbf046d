// Package jobs wraps the Asynq worker, scheduler and client used for
// background work: parent-order rollup recompute and idempotency-key
// retention cleanup.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRollupRecompute re-derives a parent order status from its lines.
	TaskRollupRecompute = "documents:rollup_recompute"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// RollupRecomputePayload identifies the order to recompute.
type RollupRecomputePayload struct {
	OrderID int64 `json:"order_id"`
}

// NewRollupRecomputeTask constructs the recompute task.
func NewRollupRecomputeTask(orderID int64) (*asynq.Task, error) {
	data, err := json.Marshal(RollupRecomputePayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRollupRecompute, data), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	RetentionSeconds int64 `json:"retention_seconds"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionSeconds: int64(retention.Seconds())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
