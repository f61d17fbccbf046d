package inventory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
)

// FixedCostStrategy is stateless: every movement prices at the item purchase
// price and no costing ledger is touched.
type FixedCostStrategy struct {
	price decimal.Decimal
}

// Method returns the costing method.
func (s *FixedCostStrategy) Method() items.CostingMethod {
	return items.CostingFixed
}

// Receive is a no-op for fixed-cost items.
func (s *FixedCostStrategy) Receive(ctx context.Context, scope CostScope, qty, unitCost decimal.Decimal, undo *UndoLog) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	return nil
}

// Issue always returns the fixed purchase price.
func (s *FixedCostStrategy) Issue(ctx context.Context, scope CostScope, qty decimal.Decimal, undo *UndoLog) (IssueResult, error) {
	if !qty.IsPositive() {
		return IssueResult{}, ErrInvalidQuantity
	}
	return IssueResult{UnitCost: round4(s.price), Consumed: round3(qty)}, nil
}
