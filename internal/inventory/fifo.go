package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
)

// FIFOStrategy consumes costed receipt lots oldest-sequence-first. A lot's
// cost price is immutable once set; only its available quantity changes.
type FIFOStrategy struct {
	repo   TxRepository
	policy ShortfallPolicy
}

// Method returns the costing method.
func (s *FIFOStrategy) Method() items.CostingMethod {
	return items.CostingFIFO
}

// Receive appends a new lot with the next sequence number.
func (s *FIFOStrategy) Receive(ctx context.Context, scope CostScope, qty, unitCost decimal.Decimal, undo *UndoLog) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	max, err := s.repo.MaxLotSequence(ctx, scope)
	if err != nil {
		return err
	}
	lot := FIFOLot{
		Scope:        scope,
		Sequence:     max + 1,
		InitialQty:   round3(qty),
		AvailableQty: round3(qty),
		CostPrice:    round4(unitCost),
		ReceivedAt:   time.Now().UTC(),
	}
	id, err := s.repo.InsertLot(ctx, lot)
	if err != nil {
		return err
	}
	if undo != nil {
		undo.Add(fmt.Sprintf("fifo lot %d insert", id), func(ctx context.Context) error {
			return s.repo.DeleteLot(ctx, id)
		})
	}
	return nil
}

// Issue walks the lots in ascending sequence, consuming min(available,
// remaining) from each. The returned unit cost is the weighted average of
// every lot touched in this call, because one issue can span multiple lots.
func (s *FIFOStrategy) Issue(ctx context.Context, scope CostScope, qty decimal.Decimal, undo *UndoLog) (IssueResult, error) {
	if !qty.IsPositive() {
		return IssueResult{}, ErrInvalidQuantity
	}
	lots, err := s.repo.ListLotsForUpdate(ctx, scope)
	if err != nil {
		return IssueResult{}, err
	}

	remaining := round3(qty)
	totalConsumed := decimal.Zero
	totalCost := decimal.Zero

	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}
		if !lot.AvailableQty.IsPositive() {
			continue
		}
		take := decimal.Min(lot.AvailableQty, remaining)
		take = round3(take)

		newAvailable := round3(lot.AvailableQty.Sub(take))
		if err := s.repo.UpdateLotAvailable(ctx, lot.ID, newAvailable); err != nil {
			return IssueResult{}, err
		}
		if undo != nil {
			lotID, prior := lot.ID, lot.AvailableQty
			undo.Add(fmt.Sprintf("fifo lot %d consume", lotID), func(ctx context.Context) error {
				return s.repo.UpdateLotAvailable(ctx, lotID, prior)
			})
		}

		totalConsumed = round3(totalConsumed.Add(take))
		totalCost = round4(totalCost.Add(round4(take.Mul(lot.CostPrice))))
		remaining = round3(remaining.Sub(take))
	}

	if remaining.IsPositive() && s.policy == ShortfallReject {
		return IssueResult{}, &InsufficientStockError{Scope: scope, Requested: qty, Available: totalConsumed}
	}

	unitCost := decimal.Zero
	if totalConsumed.IsPositive() {
		unitCost = round4(totalCost.DivRound(totalConsumed, 4))
	}
	return IssueResult{UnitCost: unitCost, Consumed: totalConsumed, Shortfall: remaining}, nil
}
