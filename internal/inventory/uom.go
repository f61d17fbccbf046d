package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
)

// Conversion is the result of normalising a transaction quantity to the
// item's base UOM.
type Conversion struct {
	BaseQty decimal.Decimal
	Factor  decimal.Decimal
	// Matched is false when the UOM was missing from the item's conversion
	// table and the 1:1 fallback was applied. Callers surface this as a
	// warning, not an error.
	Matched bool
}

// ToBase converts altQty expressed in altUOM to the item's base UOM using the
// per-item conversion table. An unknown UOM falls back to 1:1.
func ToBase(item items.Item, altUOM string, altQty decimal.Decimal) Conversion {
	factor, ok := item.Conversion(altUOM)
	if !ok {
		return Conversion{BaseQty: round3(altQty), Factor: decimal.NewFromInt(1), Matched: false}
	}
	return Conversion{BaseQty: round3(altQty.Mul(factor)), Factor: factor, Matched: true}
}

// FromBase converts a base quantity back to the alternative UOM. Exact for
// integer factors; otherwise the error stays within the 3-decimal rounding.
func FromBase(item items.Item, altUOM string, baseQty decimal.Decimal) Conversion {
	factor, ok := item.Conversion(altUOM)
	if !ok || factor.IsZero() {
		return Conversion{BaseQty: round3(baseQty), Factor: decimal.NewFromInt(1), Matched: false}
	}
	return Conversion{BaseQty: round3(baseQty.DivRound(factor, 3)), Factor: factor, Matched: true}
}
