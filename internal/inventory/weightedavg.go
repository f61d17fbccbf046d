package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
)

// WeightedAverageStrategy keeps one blended cost per costing scope. Receipts
// blend the cost; issues reduce the quantity and leave the price unchanged.
type WeightedAverageStrategy struct {
	repo   TxRepository
	policy ShortfallPolicy
}

// Method returns the costing method.
func (s *WeightedAverageStrategy) Method() items.CostingMethod {
	return items.CostingWeightedAverage
}

// Receive blends the incoming quantity and price into the running record.
// The record is created lazily on first receipt.
func (s *WeightedAverageStrategy) Receive(ctx context.Context, scope CostScope, qty, unitCost decimal.Decimal, undo *UndoLog) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	rec, err := s.repo.GetWAForUpdate(ctx, scope)
	existed := true
	if errors.Is(err, ErrWARecordNotFound) {
		rec = WARecord{Scope: scope}
		existed = false
	} else if err != nil {
		return err
	}
	prior := rec

	qty = round3(qty)
	unitCost = round4(unitCost)
	newQty := round3(rec.Quantity.Add(qty))
	currentValue := round4(rec.Quantity.Mul(rec.CostPrice))
	incomingValue := round4(qty.Mul(unitCost))
	newCost := rec.CostPrice
	if newQty.IsPositive() {
		newCost = round4(currentValue.Add(incomingValue).DivRound(newQty, 4))
	}
	rec.Quantity = newQty
	rec.CostPrice = newCost

	if err := s.repo.UpsertWA(ctx, rec); err != nil {
		return err
	}
	s.registerUndo(undo, scope, prior, existed)
	return nil
}

// Issue prices at the current cost and floors the quantity at zero. Cost only
// moves on receipts.
func (s *WeightedAverageStrategy) Issue(ctx context.Context, scope CostScope, qty decimal.Decimal, undo *UndoLog) (IssueResult, error) {
	if !qty.IsPositive() {
		return IssueResult{}, ErrInvalidQuantity
	}
	rec, err := s.repo.GetWAForUpdate(ctx, scope)
	existed := true
	if errors.Is(err, ErrWARecordNotFound) {
		rec = WARecord{Scope: scope}
		existed = false
	} else if err != nil {
		return IssueResult{}, err
	}
	prior := rec

	qty = round3(qty)
	available := rec.Quantity
	shortfall := decimal.Zero
	consumed := qty
	if qty.GreaterThan(available) {
		if s.policy == ShortfallReject {
			return IssueResult{}, &InsufficientStockError{Scope: scope, Requested: qty, Available: available}
		}
		shortfall = round3(qty.Sub(available))
		consumed = available
	}

	rec.Quantity = round3(decimal.Max(decimal.Zero, rec.Quantity.Sub(qty)))
	if err := s.repo.UpsertWA(ctx, rec); err != nil {
		return IssueResult{}, err
	}
	s.registerUndo(undo, scope, prior, existed)

	return IssueResult{UnitCost: rec.CostPrice, Consumed: consumed, Shortfall: shortfall}, nil
}

func (s *WeightedAverageStrategy) registerUndo(undo *UndoLog, scope CostScope, prior WARecord, existed bool) {
	if undo == nil {
		return
	}
	label := fmt.Sprintf("wa record %d/%d/%s", scope.MaterialID, scope.PlantID, scope.BatchID)
	undo.Add(label, func(ctx context.Context) error {
		if !existed {
			return s.repo.DeleteWA(ctx, scope)
		}
		return s.repo.UpsertWA(ctx, prior)
	})
}
