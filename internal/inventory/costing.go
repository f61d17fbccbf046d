package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
)

// ShortfallPolicy decides what happens when an issue cannot be fully
// satisfied from available costed stock.
type ShortfallPolicy string

const (
	// ShortfallReject aborts the document transition.
	ShortfallReject ShortfallPolicy = "reject"
	// ShortfallBestEffort prices the available part and reports the shortage.
	ShortfallBestEffort ShortfallPolicy = "best_effort"
)

// ParseShortfallPolicy validates a configured policy string.
func ParseShortfallPolicy(s string) (ShortfallPolicy, error) {
	switch ShortfallPolicy(s) {
	case ShortfallReject, ShortfallBestEffort:
		return ShortfallPolicy(s), nil
	default:
		return "", fmt.Errorf("inventory: unknown shortfall policy %q", s)
	}
}

// IssueResult reports the outcome of pricing an issue.
type IssueResult struct {
	// UnitCost is the weighted average cost of everything consumed in this
	// call, rounded to 4 decimals.
	UnitCost decimal.Decimal
	Consumed decimal.Decimal
	// Shortfall is non-zero only under the best-effort policy.
	Shortfall decimal.Decimal
}

// CostingStrategy prices quantity movements and mutates its costing ledger.
// Receive adds supply at the given landed unit cost; Issue consumes supply
// and returns the unit cost to book. Both register inverse operations on the
// undo log so a failed document transition can restore the ledger.
type CostingStrategy interface {
	Method() items.CostingMethod
	Receive(ctx context.Context, scope CostScope, qty, unitCost decimal.Decimal, undo *UndoLog) error
	Issue(ctx context.Context, scope CostScope, qty decimal.Decimal, undo *UndoLog) (IssueResult, error)
}

// StrategyFor selects the costing strategy for an item.
func StrategyFor(item items.Item, repo TxRepository, policy ShortfallPolicy) (CostingStrategy, error) {
	switch item.CostingMethod {
	case items.CostingFIFO:
		return &FIFOStrategy{repo: repo, policy: policy}, nil
	case items.CostingWeightedAverage:
		return &WeightedAverageStrategy{repo: repo, policy: policy}, nil
	case items.CostingFixed:
		return &FixedCostStrategy{price: item.PurchasePrice}, nil
	default:
		return nil, fmt.Errorf("inventory: item %s has unknown costing method %q", item.Code, item.CostingMethod)
	}
}
