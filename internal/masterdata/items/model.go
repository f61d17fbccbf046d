// Package items provides the material master entity.
package items

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostingMethod selects how issues from stock are priced.
type CostingMethod string

const (
	// CostingFIFO consumes costed receipt lots oldest-first.
	CostingFIFO CostingMethod = "FIFO"
	// CostingWeightedAverage keeps one blended cost per material scope.
	CostingWeightedAverage CostingMethod = "WEIGHTED_AVERAGE"
	// CostingFixed always prices at the item purchase price.
	CostingFixed CostingMethod = "FIXED_COST"
)

// IsValid checks if the costing method is known.
func (m CostingMethod) IsValid() bool {
	switch m {
	case CostingFIFO, CostingWeightedAverage, CostingFixed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the costing method.
func (m CostingMethod) String() string {
	return string(m)
}

// UOMConversion maps an alternative unit to base units.
type UOMConversion struct {
	AltUOM  string          `json:"alt_uom"`
	BaseQty decimal.Decimal `json:"base_qty"`
}

// Item represents a material master record. It is read-only input to the
// inventory engine: a document transition never mutates the item.
type Item struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	BaseUOM         string          `json:"base_uom"`
	CostingMethod   CostingMethod   `json:"costing_method"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	BatchManaged    bool            `json:"batch_managed"`
	SerialManaged   bool            `json:"serial_managed"`
	StockControlled bool            `json:"stock_controlled"`
	UOMConversions  []UOMConversion `json:"uom_conversions,omitempty"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Conversion looks up the base factor for an alternative UOM.
func (i Item) Conversion(altUOM string) (decimal.Decimal, bool) {
	if altUOM == i.BaseUOM {
		return decimal.NewFromInt(1), true
	}
	for _, c := range i.UOMConversions {
		if c.AltUOM == altUOM {
			return c.BaseQty, true
		}
	}
	return decimal.Decimal{}, false
}
