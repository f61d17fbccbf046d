package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
)

// memoryRepo is an in-memory TxRepository and RepositoryPort used by the
// engine tests. WithTx runs the callback against the same state; rollback is
// exercised through the coordinator's undo log, not the transaction.
type memoryRepo struct {
	balances  map[StockKey]BalanceRecord
	lots      map[int64]*FIFOLot
	wa        map[CostScope]WARecord
	movements []*MovementRecord
	nextLotID int64

	// failMovementAfter forces InsertMovement to fail once n inserts have
	// succeeded. Zero disables the hook.
	failMovementAfter int
	movementInserts   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		balances: map[StockKey]BalanceRecord{},
		lots:     map[int64]*FIFOLot{},
		wa:       map[CostScope]WARecord{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) GetBalanceForUpdate(ctx context.Context, key StockKey) (BalanceRecord, error) {
	rec, ok := r.balances[key]
	if !ok {
		return BalanceRecord{}, ErrBalanceNotFound
	}
	return rec, nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, key StockKey) (BalanceRecord, error) {
	return r.GetBalanceForUpdate(ctx, key)
}

func (r *memoryRepo) UpsertBalance(ctx context.Context, rec BalanceRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	r.balances[rec.Key] = rec
	return nil
}

func (r *memoryRepo) ListBalances(ctx context.Context, materialID, plantID int64) ([]BalanceRecord, error) {
	var out []BalanceRecord
	for _, rec := range r.balances {
		if rec.Key.MaterialID == materialID && rec.Key.PlantID == plantID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.LocationID != out[j].Key.LocationID {
			return out[i].Key.LocationID < out[j].Key.LocationID
		}
		return out[i].Key.BatchID < out[j].Key.BatchID
	})
	return out, nil
}

func (r *memoryRepo) ListLotsForUpdate(ctx context.Context, scope CostScope) ([]FIFOLot, error) {
	var out []FIFOLot
	for _, lot := range r.lots {
		if lot.Scope == scope {
			out = append(out, *lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r *memoryRepo) ListLots(ctx context.Context, scope CostScope) ([]FIFOLot, error) {
	return r.ListLotsForUpdate(ctx, scope)
}

func (r *memoryRepo) InsertLot(ctx context.Context, lot FIFOLot) (int64, error) {
	r.nextLotID++
	lot.ID = r.nextLotID
	r.lots[lot.ID] = &lot
	return lot.ID, nil
}

func (r *memoryRepo) UpdateLotAvailable(ctx context.Context, lotID int64, available decimal.Decimal) error {
	lot, ok := r.lots[lotID]
	if !ok {
		return ErrLotNotFound
	}
	lot.AvailableQty = available
	return nil
}

func (r *memoryRepo) DeleteLot(ctx context.Context, lotID int64) error {
	if _, ok := r.lots[lotID]; !ok {
		return ErrLotNotFound
	}
	delete(r.lots, lotID)
	return nil
}

func (r *memoryRepo) MaxLotSequence(ctx context.Context, scope CostScope) (int64, error) {
	var max int64
	for _, lot := range r.lots {
		if lot.Scope == scope && lot.Sequence > max {
			max = lot.Sequence
		}
	}
	return max, nil
}

func (r *memoryRepo) GetWAForUpdate(ctx context.Context, scope CostScope) (WARecord, error) {
	rec, ok := r.wa[scope]
	if !ok {
		return WARecord{}, ErrWARecordNotFound
	}
	return rec, nil
}

func (r *memoryRepo) UpsertWA(ctx context.Context, rec WARecord) error {
	rec.UpdatedAt = time.Now().UTC()
	r.wa[rec.Scope] = rec
	return nil
}

func (r *memoryRepo) DeleteWA(ctx context.Context, scope CostScope) error {
	delete(r.wa, scope)
	return nil
}

func (r *memoryRepo) InsertMovement(ctx context.Context, m MovementRecord) error {
	if r.failMovementAfter > 0 && r.movementInserts >= r.failMovementAfter {
		return errors.New("movement insert failed")
	}
	r.movementInserts++
	rec := m
	r.movements = append(r.movements, &rec)
	return nil
}

func (r *memoryRepo) VoidMovement(ctx context.Context, id string) error {
	for _, m := range r.movements {
		if m.ID == id {
			m.Voided = true
			return nil
		}
	}
	return errors.New("movement not found: " + id)
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error) {
	var out []MovementRecord
	for _, m := range r.movements {
		if m.MaterialID != filter.MaterialID || m.PlantID != filter.PlantID {
			continue
		}
		if filter.LocationID != 0 && m.LocationID != filter.LocationID {
			continue
		}
		if filter.BatchID != "" && m.BatchID != filter.BatchID {
			continue
		}
		out = append(out, *m)
	}
	// Newest first, matching the ledger query.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *memoryRepo) liveMovements() []MovementRecord {
	var out []MovementRecord
	for _, m := range r.movements {
		if !m.Voided {
			out = append(out, *m)
		}
	}
	return out
}

func (r *memoryRepo) seedBalance(key StockKey, bucket Bucket, qty decimal.Decimal) {
	rec := r.balances[key]
	rec.Key = key
	rec.setBucket(bucket, qty)
	r.balances[key] = rec
	if !key.IsAggregate() {
		agg := r.balances[key.Aggregate()]
		agg.Key = key.Aggregate()
		agg.setBucket(bucket, round3(agg.BucketQty(bucket).Add(qty)))
		r.balances[key.Aggregate()] = agg
	}
}

func (r *memoryRepo) seedLot(scope CostScope, seq int64, available, cost string) int64 {
	r.nextLotID++
	qty := decimal.RequireFromString(available)
	r.lots[r.nextLotID] = &FIFOLot{
		ID:           r.nextLotID,
		Scope:        scope,
		Sequence:     seq,
		InitialQty:   qty,
		AvailableQty: qty,
		CostPrice:    decimal.RequireFromString(cost),
		ReceivedAt:   time.Now().UTC(),
	}
	return r.nextLotID
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fifoItem(id int64) items.Item {
	return items.Item{
		ID:              id,
		Code:            "MAT-FIFO",
		Name:            "FIFO material",
		BaseUOM:         "EA",
		CostingMethod:   items.CostingFIFO,
		StockControlled: true,
		IsActive:        true,
	}
}

func waItem(id int64) items.Item {
	return items.Item{
		ID:              id,
		Code:            "MAT-WA",
		Name:            "Weighted average material",
		BaseUOM:         "EA",
		CostingMethod:   items.CostingWeightedAverage,
		StockControlled: true,
		IsActive:        true,
	}
}
