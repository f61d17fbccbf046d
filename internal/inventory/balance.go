package inventory

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// BalanceChange records one balance mutation for the coordinator's undo log.
type BalanceChange struct {
	Key     StockKey
	Prior   BalanceRecord
	Updated BalanceRecord
	// Created is true when the record did not exist before the adjustment.
	Created bool
}

// BalanceStore reads and writes bucketed balance records through the
// transactional repository. It never clamps: an adjustment that would drive a
// bucket below zero fails, so callers pre-check availability.
type BalanceStore struct {
	repo TxRepository
}

// NewBalanceStore constructs the store.
func NewBalanceStore(repo TxRepository) *BalanceStore {
	return &BalanceStore{repo: repo}
}

// Adjust applies delta to one bucket of the record at key. When the key
// carries a batch, the same delta is applied to the aggregate batch-less
// record so plant-wide views stay consistent. All applied changes are
// returned in order so the caller can reverse them.
func (s *BalanceStore) Adjust(ctx context.Context, key StockKey, bucket Bucket, delta decimal.Decimal) ([]BalanceChange, error) {
	change, err := s.adjustOne(ctx, key, bucket, delta)
	if err != nil {
		return nil, err
	}
	changes := []BalanceChange{change}

	if !key.IsAggregate() {
		aggChange, err := s.adjustOne(ctx, key.Aggregate(), bucket, delta)
		if err != nil {
			return nil, err
		}
		changes = append(changes, aggChange)
	}
	return changes, nil
}

func (s *BalanceStore) adjustOne(ctx context.Context, key StockKey, bucket Bucket, delta decimal.Decimal) (BalanceChange, error) {
	if !bucket.IsValid() {
		return BalanceChange{}, errors.New("inventory: unknown bucket " + string(bucket))
	}

	created := false
	rec, err := s.repo.GetBalanceForUpdate(ctx, key)
	if errors.Is(err, ErrBalanceNotFound) {
		rec = BalanceRecord{Key: key}
		created = true
	} else if err != nil {
		return BalanceChange{}, err
	}
	prior := rec

	have := rec.BucketQty(bucket)
	next := round3(have.Add(delta))
	if next.IsNegative() {
		return BalanceChange{}, &NegativeBalanceError{Key: key, Bucket: bucket, Have: have, Delta: delta}
	}
	rec.setBucket(bucket, next)
	if rec.Total().IsNegative() {
		return BalanceChange{}, &NegativeBalanceError{Key: key, Bucket: bucket, Have: have, Delta: delta}
	}

	if err := s.repo.UpsertBalance(ctx, rec); err != nil {
		return BalanceChange{}, err
	}
	return BalanceChange{Key: key, Prior: prior, Updated: rec, Created: created}, nil
}

// Restore writes a prior record back, used by rollback.
func (s *BalanceStore) Restore(ctx context.Context, change BalanceChange) error {
	return s.repo.UpsertBalance(ctx, change.Prior)
}
