// Package inventory implements the costing and balance reconciliation engine.
package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bucket is one of the mutually-exclusive inventory states a quantity can sit
// in at a location.
type Bucket string

const (
	BucketUnrestricted Bucket = "UNRESTRICTED"
	BucketReserved     Bucket = "RESERVED"
	BucketBlocked      Bucket = "BLOCKED"
	BucketQualityInsp  Bucket = "QUALITY_INSPECTION"
	BucketInTransit    Bucket = "IN_TRANSIT"
)

// IsValid checks if the bucket is known.
func (b Bucket) IsValid() bool {
	switch b {
	case BucketUnrestricted, BucketReserved, BucketBlocked, BucketQualityInsp, BucketInTransit:
		return true
	default:
		return false
	}
}

// String returns the string representation of the bucket.
func (b Bucket) String() string {
	return string(b)
}

// AllBuckets lists every bucket in a stable order.
func AllBuckets() []Bucket {
	return []Bucket{BucketUnrestricted, BucketReserved, BucketBlocked, BucketQualityInsp, BucketInTransit}
}

// Direction marks a movement record as inbound or outbound.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// StockKey identifies one balance record. An empty BatchID addresses the
// aggregate record that mirrors all batches of the material at the location.
type StockKey struct {
	MaterialID int64
	PlantID    int64
	LocationID int64
	BatchID    string
}

// Aggregate returns the batch-less key for the same material and location.
func (k StockKey) Aggregate() StockKey {
	k.BatchID = ""
	return k
}

// IsAggregate reports whether the key addresses the cross-batch record.
func (k StockKey) IsAggregate() bool {
	return k.BatchID == ""
}

// String renders the key for logs and lock names.
func (k StockKey) String() string {
	if k.BatchID == "" {
		return fmt.Sprintf("%d/%d/%d", k.MaterialID, k.PlantID, k.LocationID)
	}
	return fmt.Sprintf("%d/%d/%d/%s", k.MaterialID, k.PlantID, k.LocationID, k.BatchID)
}

// CostScope identifies one costing ledger (FIFO lot table or WA record).
// Costing is tracked per plant, not per location.
type CostScope struct {
	MaterialID int64
	PlantID    int64
	BatchID    string
}

// BalanceRecord holds the bucketed quantities for one stock key. The derived
// total is always recomputed from the buckets, never stored independently.
type BalanceRecord struct {
	Key          StockKey
	Unrestricted decimal.Decimal
	Reserved     decimal.Decimal
	Blocked      decimal.Decimal
	QualityInsp  decimal.Decimal
	InTransit    decimal.Decimal
	UpdatedAt    time.Time
}

// Total returns the sum of all buckets.
func (r BalanceRecord) Total() decimal.Decimal {
	return r.Unrestricted.Add(r.Reserved).Add(r.Blocked).Add(r.QualityInsp).Add(r.InTransit)
}

// BucketQty returns the quantity held in one bucket.
func (r BalanceRecord) BucketQty(b Bucket) decimal.Decimal {
	switch b {
	case BucketUnrestricted:
		return r.Unrestricted
	case BucketReserved:
		return r.Reserved
	case BucketBlocked:
		return r.Blocked
	case BucketQualityInsp:
		return r.QualityInsp
	case BucketInTransit:
		return r.InTransit
	}
	return decimal.Decimal{}
}

func (r *BalanceRecord) setBucket(b Bucket, qty decimal.Decimal) {
	switch b {
	case BucketUnrestricted:
		r.Unrestricted = qty
	case BucketReserved:
		r.Reserved = qty
	case BucketBlocked:
		r.Blocked = qty
	case BucketQualityInsp:
		r.QualityInsp = qty
	case BucketInTransit:
		r.InTransit = qty
	}
}

// FIFOLot is a costed receipt consumed oldest-sequence-first. AvailableQty is
// the only field that changes after creation.
type FIFOLot struct {
	ID           int64
	Scope        CostScope
	Sequence     int64
	InitialQty   decimal.Decimal
	AvailableQty decimal.Decimal
	CostPrice    decimal.Decimal
	ReceivedAt   time.Time
}

// WARecord keeps one blended cost per costing scope. Cost only moves on
// receipts; issues reduce the quantity and leave the price untouched.
type WARecord struct {
	Scope     CostScope
	Quantity  decimal.Decimal
	CostPrice decimal.Decimal
	UpdatedAt time.Time
}

// MovementRecord narrates one balance change for audit. Records are append
// only; corrections are new offsetting entries and rollbacks set the voided
// flag instead of deleting.
type MovementRecord struct {
	ID         string
	TxType     string
	TxNumber   string
	DocRef     string
	Direction  Direction
	Bucket     Bucket
	Quantity   decimal.Decimal // base UOM
	TxQuantity decimal.Decimal // transaction UOM
	TxUOM      string
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	MaterialID int64
	PlantID    int64
	LocationID int64
	BatchID    string
	SerialNo   string
	Voided     bool
	PostedAt   time.Time
}

// SubAllocation splits a document line across locations and batches.
type SubAllocation struct {
	LocationID int64           `json:"location_id"`
	BatchID    string          `json:"batch_id,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	SerialNo   string          `json:"serial_number,omitempty"`
}

// Sentinel errors of the engine.
var (
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrNegativeBalance   = errors.New("inventory: balance bucket may not go negative")
	ErrBalanceNotFound   = errors.New("inventory: balance not found")
	ErrLotNotFound       = errors.New("inventory: fifo lot not found")
	ErrWARecordNotFound  = errors.New("inventory: weighted average record not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be positive")
	ErrReversal          = errors.New("inventory: rollback failed, manual reconciliation required")
)

// InsufficientStockError reports the shortfall of an issue that could not be
// fully satisfied.
type InsufficientStockError struct {
	Scope     CostScope
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	shortfall := e.Requested.Sub(e.Available)
	return fmt.Sprintf("inventory: insufficient stock for material %d (plant %d): requested %s, available %s, short %s",
		e.Scope.MaterialID, e.Scope.PlantID, e.Requested.String(), e.Available.String(), shortfall.String())
}

// Unwrap allows errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// NegativeBalanceError reports which bucket an adjustment would have driven
// below zero.
type NegativeBalanceError struct {
	Key    StockKey
	Bucket Bucket
	Have   decimal.Decimal
	Delta  decimal.Decimal
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("inventory: %s at %s would become negative (have %s, delta %s)",
		e.Bucket, e.Key, e.Have.String(), e.Delta.String())
}

// Unwrap allows errors.Is(err, ErrNegativeBalance).
func (e *NegativeBalanceError) Unwrap() error {
	return ErrNegativeBalance
}

// round3 fixes quantities to three decimals at every arithmetic step.
func round3(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}

// round4 fixes monetary values to four decimals at every arithmetic step.
func round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}
