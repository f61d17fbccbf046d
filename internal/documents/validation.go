package documents

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/inventory"
)

// validateLines applies the checks the struct validator cannot express:
// decimal signs and per-kind quantity rules.
func validateLines(kind inventory.DocKind, lines []Line) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: unknown document kind %q", ErrValidation, kind)
	}
	one := decimal.NewFromInt(1)
	for i, line := range lines {
		if len(line.SubAllocations) == 0 {
			return fmt.Errorf("%w: line %d has no sub-allocations", ErrValidation, i+1)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d unit price must not be negative", ErrValidation, i+1)
		}
		if line.Discount.IsNegative() {
			return fmt.Errorf("%w: line %d discount must not be negative", ErrValidation, i+1)
		}
		if line.TaxRate.IsNegative() || line.TaxRate.GreaterThanOrEqual(one) {
			return fmt.Errorf("%w: line %d tax rate must be a fraction in [0,1)", ErrValidation, i+1)
		}
		for j, alloc := range line.SubAllocations {
			if alloc.Quantity.IsZero() {
				return fmt.Errorf("%w: line %d sub-allocation %d quantity must not be zero", ErrValidation, i+1, j+1)
			}
			// Only stock adjustments carry signed quantities.
			if kind != inventory.KindStockAdjustment && alloc.Quantity.IsNegative() {
				return fmt.Errorf("%w: line %d sub-allocation %d quantity must be positive", ErrValidation, i+1, j+1)
			}
		}
	}
	return nil
}
