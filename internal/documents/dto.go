package documents

import (
	"github.com/shopspring/decimal"
)

// SubAllocationRequest is one location/batch split of a line quantity.
type SubAllocationRequest struct {
	LocationID int64           `json:"location_id" validate:"required,gt=0"`
	BatchID    string          `json:"batch_id,omitempty" validate:"omitempty,max=40"`
	Quantity   decimal.Decimal `json:"quantity"`
	SerialNo   string          `json:"serial_number,omitempty" validate:"omitempty,max=60"`
}

// LineRequest is one document line in a create or update request.
type LineRequest struct {
	ItemID       int64                  `json:"item_id" validate:"required,gt=0"`
	OrderLineID  *int64                 `json:"order_line_id,omitempty" validate:"omitempty,gt=0"`
	UOM          string                 `json:"uom" validate:"required,max=16"`
	UnitPrice    decimal.Decimal        `json:"unit_price"`
	Discount     decimal.Decimal        `json:"discount"`
	DiscountType string                 `json:"discount_type,omitempty" validate:"omitempty,oneof=AMOUNT PERCENT"`
	TaxRate      decimal.Decimal        `json:"tax_rate"`
	TaxInclusive bool                   `json:"tax_inclusive"`
	Decrease     bool                   `json:"decrease,omitempty"`
	LineOrder    int                    `json:"line_order" validate:"gte=0"`
	Allocations  []SubAllocationRequest `json:"sub_allocations" validate:"required,min=1,dive"`
}

// CreateDocumentRequest creates a draft document; the draft already carries
// its soft allocation.
type CreateDocumentRequest struct {
	Kind      string        `json:"kind" validate:"required,oneof=GOODS_RECEIPT GOODS_DELIVERY STOCK_ADJUSTMENT"`
	DocNumber string        `json:"doc_number,omitempty" validate:"omitempty,max=40"`
	PlantID   int64         `json:"plant_id" validate:"required,gt=0"`
	OrderID   *int64        `json:"order_id,omitempty" validate:"omitempty,gt=0"`
	Notes     *string       `json:"notes,omitempty"`
	Lines     []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// UpdateDocumentRequest replaces the line set of a draft.
type UpdateDocumentRequest struct {
	Lines []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// CancelDocumentRequest cancels a draft.
type CancelDocumentRequest struct {
	// KeepReservation leaves the reserved stock allocated, for picking flows
	// that replace the document. Ignored for receipts.
	KeepReservation bool `json:"keep_reservation"`
}

// CreateOrderRequest creates a rollup parent order.
type CreateOrderRequest struct {
	OrderNumber string             `json:"order_number" validate:"required,max=40"`
	Kind        string             `json:"kind" validate:"required,oneof=SALES PURCHASE"`
	PlantID     int64              `json:"plant_id" validate:"required,gt=0"`
	Lines       []OrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// OrderLineRequest is one ordered quantity in base UOM.
type OrderLineRequest struct {
	ItemID     int64           `json:"item_id" validate:"required,gt=0"`
	OrderedQty decimal.Decimal `json:"ordered_qty"`
}
