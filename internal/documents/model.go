// Package documents implements the stock document lifecycle: goods receipts,
// goods deliveries and stock adjustments, their sub-allocations, and the
// status rollup onto parent orders.
package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/inventory"
)

// Status is the lifecycle state of a stock document.
type Status string

const (
	// StatusDraft documents already carry their soft allocation and can
	// still be edited.
	StatusDraft     Status = "DRAFT"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanEdit checks if the document can still be edited.
func (s Status) CanEdit() bool {
	return s == StatusDraft
}

// CanComplete checks if the document can be completed.
func (s Status) CanComplete() bool {
	return s == StatusDraft
}

// CanCancel checks if the document can be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusDraft
}

// Document is one stock document header.
type Document struct {
	ID          int64             `json:"id"`
	DocNumber   string            `json:"doc_number"`
	Kind        inventory.DocKind `json:"kind"`
	PlantID     int64             `json:"plant_id"`
	Status      Status            `json:"status"`
	OrderID     *int64            `json:"order_id,omitempty"`
	Notes       *string           `json:"notes,omitempty"`
	CreatedBy   int64             `json:"created_by"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Lines       []Line            `json:"lines,omitempty"`
}

// Line is one document line. SubAllocations split the line quantity across
// locations and batches in the transaction UOM.
type Line struct {
	ID           int64           `json:"id"`
	DocumentID   int64           `json:"document_id"`
	LineOrder    int             `json:"line_order"`
	ItemID       int64           `json:"item_id"`
	OrderLineID  *int64          `json:"order_line_id,omitempty"`
	UOM          string          `json:"uom"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountType string          `json:"discount_type,omitempty"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	TaxInclusive bool            `json:"tax_inclusive"`
	Decrease     bool            `json:"decrease,omitempty"`

	SubAllocations []inventory.SubAllocation `json:"sub_allocations"`
}

// OrderKind distinguishes the parent order side.
type OrderKind string

const (
	OrderSales    OrderKind = "SALES"
	OrderPurchase OrderKind = "PURCHASE"
)

// Order is a rollup parent: sales orders are fulfilled by goods deliveries,
// purchase orders by goods receipts.
type Order struct {
	ID          int64       `json:"id"`
	OrderNumber string      `json:"order_number"`
	Kind        OrderKind   `json:"kind"`
	Status      OrderStatus `json:"status"`
	PlantID     int64       `json:"plant_id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Lines       []OrderLine `json:"lines,omitempty"`
}

// OrderLine tracks ordered vs fulfilled quantity in the item's base UOM.
type OrderLine struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ItemID       int64           `json:"item_id"`
	OrderedQty   decimal.Decimal `json:"ordered_qty"`
	FulfilledQty decimal.Decimal `json:"fulfilled_qty"`
}
