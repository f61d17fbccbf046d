package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
)

// Mode encodes the document status transition being applied.
type Mode string

const (
	ModeCreate   Mode = "CREATE"
	ModeComplete Mode = "COMPLETE"
	ModeCancel   Mode = "CANCEL"
	ModeEdit     Mode = "EDIT"
)

// IsValid checks if the mode is known.
func (m Mode) IsValid() bool {
	switch m {
	case ModeCreate, ModeComplete, ModeCancel, ModeEdit:
		return true
	default:
		return false
	}
}

// DocKind identifies the document type driving a transition.
type DocKind string

const (
	KindGoodsReceipt    DocKind = "GOODS_RECEIPT"
	KindGoodsDelivery   DocKind = "GOODS_DELIVERY"
	KindStockAdjustment DocKind = "STOCK_ADJUSTMENT"
)

// IsValid checks if the document kind is known.
func (k DocKind) IsValid() bool {
	switch k {
	case KindGoodsReceipt, KindGoodsDelivery, KindStockAdjustment:
		return true
	default:
		return false
	}
}

// allocationBucket returns the soft-allocation bucket a kind parks stock in
// between Created and Completed.
func (k DocKind) allocationBucket() Bucket {
	if k == KindGoodsReceipt {
		return BucketInTransit
	}
	return BucketReserved
}

// Line is one document line presented to the coordinator. Quantities on the
// sub-allocations are expressed in the line's transaction UOM.
type Line struct {
	LineID   int64
	Item     items.Item
	UOM      string
	Pricing  LandedCostInput
	Decrease bool // stock adjustments only: issue instead of receive

	SubAllocations     []SubAllocation
	PrevSubAllocations []SubAllocation // edit mode diff base
}

// Transition describes one multi-line document status change.
type Transition struct {
	Kind    DocKind
	Mode    Mode
	DocNo   string
	DocRef  string
	PlantID int64
	// KeepReservation suppresses releasing reserved stock on cancel/edit,
	// used by picking-plan flows that keep the allocation alive.
	KeepReservation bool
	Lines           []Line
}

// LineResult reports the applied outcome for one line.
type LineResult struct {
	LineID      int64
	BaseQty     decimal.Decimal
	UnitCost    decimal.Decimal
	TotalValue  decimal.Decimal
	Shortfall   decimal.Decimal
	MovementIDs []string
}

// Result aggregates the whole transition.
type Result struct {
	Lines    []LineResult
	Warnings []string
}

// Coordinator orchestrates one document transition: per sub-allocation it
// converts the UOM, prices through the costing strategy, adjusts balance
// buckets and appends movement entries. Any failure reverses every balance
// and costing mutation already applied for this document and soft-voids the
// movements written so far.
type Coordinator struct {
	repo     TxRepository
	balances *BalanceStore
	ledger   *MovementLedger
	policy   ShortfallPolicy
}

// NewCoordinator constructs a coordinator bound to one transactional
// repository instance.
func NewCoordinator(repo TxRepository, policy ShortfallPolicy) *Coordinator {
	return &Coordinator{
		repo:     repo,
		balances: NewBalanceStore(repo),
		ledger:   NewMovementLedger(repo),
		policy:   policy,
	}
}

// Apply runs the transition. On error the returned state is as before the
// call, except voided movement entries, unless the rollback itself failed
// (ErrReversal).
func (c *Coordinator) Apply(ctx context.Context, t Transition) (Result, error) {
	if !t.Kind.IsValid() {
		return Result{}, fmt.Errorf("inventory: unknown document kind %q", t.Kind)
	}
	if !t.Mode.IsValid() {
		return Result{}, fmt.Errorf("inventory: unknown mode %q", t.Mode)
	}
	if t.DocNo == "" {
		return Result{}, errors.New("inventory: document number required")
	}

	undo := &UndoLog{}
	result, err := c.apply(ctx, t, undo)
	if err != nil {
		if revErr := undo.Revert(ctx); revErr != nil {
			return Result{}, errors.Join(revErr, err)
		}
		return Result{}, err
	}
	return result, nil
}

func (c *Coordinator) apply(ctx context.Context, t Transition, undo *UndoLog) (Result, error) {
	var result Result
	for i, line := range t.Lines {
		if !line.Item.StockControlled {
			continue
		}
		lineRes, warnings, err := c.applyLine(ctx, t, line, undo)
		if err != nil {
			return Result{}, fmt.Errorf("line %d (item %s): %w", i+1, line.Item.Code, err)
		}
		result.Lines = append(result.Lines, lineRes)
		result.Warnings = append(result.Warnings, warnings...)
	}
	return result, nil
}

func (c *Coordinator) applyLine(ctx context.Context, t Transition, line Line, undo *UndoLog) (LineResult, []string, error) {
	allocs := line.SubAllocations
	if t.Mode != ModeEdit && len(allocs) == 0 {
		return LineResult{}, nil, errors.New("no sub-allocations")
	}

	res := LineResult{LineID: line.LineID}
	var warnings []string

	// Landed cost derives from the whole line so an absolute discount is not
	// applied once per sub-allocation. Pricing is in the transaction UOM; the
	// final amount is spread over the base quantity.
	lineUnitCost := decimal.Zero
	if t.Kind == KindGoodsReceipt && t.Mode == ModeComplete {
		totalTx := decimal.Zero
		totalBase := decimal.Zero
		for _, alloc := range allocs {
			totalTx = round3(totalTx.Add(alloc.Quantity.Abs()))
			totalBase = round3(totalBase.Add(ToBase(line.Item, line.UOM, alloc.Quantity.Abs()).BaseQty))
		}
		landed := ComputeLandedCost(LandedCostInput{
			Quantity:     totalTx,
			UnitPrice:    line.Pricing.UnitPrice,
			Discount:     line.Pricing.Discount,
			DiscountType: line.Pricing.DiscountType,
			TaxRate:      line.Pricing.TaxRate,
			TaxInclusive: line.Pricing.TaxInclusive,
		})
		if totalBase.IsPositive() {
			lineUnitCost = round4(landed.FinalAmount.DivRound(totalBase, 4))
		}
	}

	apply := func(alloc SubAllocation, qty decimal.Decimal) error {
		if qty.IsZero() {
			return nil
		}
		conv := ToBase(line.Item, line.UOM, qty.Abs())
		if !conv.Matched {
			warnings = append(warnings, fmt.Sprintf("item %s: UOM %q not in conversion table, assuming 1:1", line.Item.Code, line.UOM))
		}
		batchID, err := c.batchFor(line.Item, alloc)
		if err != nil {
			return err
		}
		step := allocationStep{
			key:      StockKey{MaterialID: line.Item.ID, PlantID: t.PlantID, LocationID: alloc.LocationID, BatchID: batchID},
			scope:    CostScope{MaterialID: line.Item.ID, PlantID: t.PlantID, BatchID: batchID},
			baseQty:  conv.BaseQty,
			txQty:    round3(qty.Abs()),
			unitCost: lineUnitCost,
			negative: qty.IsNegative(),
			serialNo: alloc.SerialNo,
		}
		return c.applyAllocation(ctx, t, line, step, &res, undo)
	}

	if t.Mode == ModeEdit {
		for _, d := range diffAllocations(line.PrevSubAllocations, line.SubAllocations) {
			if err := apply(d.alloc, d.delta); err != nil {
				return LineResult{}, nil, err
			}
		}
		return res, warnings, nil
	}

	for _, alloc := range allocs {
		if err := apply(alloc, alloc.Quantity); err != nil {
			return LineResult{}, nil, err
		}
	}
	return res, warnings, nil
}

type allocationStep struct {
	key      StockKey
	scope    CostScope
	baseQty  decimal.Decimal
	txQty    decimal.Decimal
	unitCost decimal.Decimal
	negative bool
	serialNo string
}

func (c *Coordinator) batchFor(item items.Item, alloc SubAllocation) (string, error) {
	if item.BatchManaged && alloc.BatchID == "" {
		return "", fmt.Errorf("item %s is batch managed but sub-allocation has no batch", item.Code)
	}
	if !item.BatchManaged {
		return "", nil
	}
	return alloc.BatchID, nil
}

func (c *Coordinator) applyAllocation(ctx context.Context, t Transition, line Line, step allocationStep, res *LineResult, undo *UndoLog) error {
	switch t.Kind {
	case KindStockAdjustment:
		return c.applyAdjustment(ctx, t, line, step, res, undo)
	default:
	}

	switch t.Mode {
	case ModeCreate:
		return c.allocate(ctx, t, line, step, step.baseQty, res, undo)
	case ModeEdit:
		if step.negative {
			if t.KeepReservation {
				return nil
			}
			return c.release(ctx, t, line, step, step.baseQty, res, undo)
		}
		return c.allocate(ctx, t, line, step, step.baseQty, res, undo)
	case ModeCancel:
		if t.KeepReservation {
			return nil
		}
		return c.release(ctx, t, line, step, step.baseQty, res, undo)
	case ModeComplete:
		if t.Kind == KindGoodsReceipt {
			return c.completeReceipt(ctx, t, line, step, res, undo)
		}
		return c.completeDelivery(ctx, t, line, step, res, undo)
	}
	return fmt.Errorf("inventory: unsupported transition %s/%s", t.Kind, t.Mode)
}

// allocate parks stock in the kind's soft-allocation bucket: deliveries move
// Unrestricted to Reserved, receipts announce quantity as In-Transit.
func (c *Coordinator) allocate(ctx context.Context, t Transition, line Line, step allocationStep, qty decimal.Decimal, res *LineResult, undo *UndoLog) error {
	target := t.Kind.allocationBucket()

	if t.Kind == KindGoodsDelivery {
		if err := c.adjust(ctx, step.key, BucketUnrestricted, qty.Neg(), undo); err != nil {
			return err
		}
		if err := c.adjust(ctx, step.key, target, qty, undo); err != nil {
			return err
		}
		outID, inID, err := c.ledger.RecordTransfer(ctx,
			c.movement(t, line, step, BucketUnrestricted, qty, decimal.Zero),
			c.movement(t, line, step, target, qty, decimal.Zero),
			undo)
		if err != nil {
			return err
		}
		res.MovementIDs = append(res.MovementIDs, outID, inID)
	} else {
		if err := c.adjust(ctx, step.key, target, qty, undo); err != nil {
			return err
		}
		m := c.movement(t, line, step, target, qty, decimal.Zero)
		m.Direction = DirectionIn
		id, err := c.ledger.Record(ctx, m, undo)
		if err != nil {
			return err
		}
		res.MovementIDs = append(res.MovementIDs, id)
	}
	res.BaseQty = round3(res.BaseQty.Add(qty))
	return nil
}

// release reverses a soft allocation, returning stock to Unrestricted for
// deliveries or removing the In-Transit announcement for receipts.
func (c *Coordinator) release(ctx context.Context, t Transition, line Line, step allocationStep, qty decimal.Decimal, res *LineResult, undo *UndoLog) error {
	source := t.Kind.allocationBucket()

	if err := c.adjust(ctx, step.key, source, qty.Neg(), undo); err != nil {
		return err
	}
	if t.Kind == KindGoodsDelivery {
		if err := c.adjust(ctx, step.key, BucketUnrestricted, qty, undo); err != nil {
			return err
		}
		outID, inID, err := c.ledger.RecordTransfer(ctx,
			c.movement(t, line, step, source, qty, decimal.Zero),
			c.movement(t, line, step, BucketUnrestricted, qty, decimal.Zero),
			undo)
		if err != nil {
			return err
		}
		res.MovementIDs = append(res.MovementIDs, outID, inID)
	} else {
		m := c.movement(t, line, step, source, qty, decimal.Zero)
		m.Direction = DirectionOut
		id, err := c.ledger.Record(ctx, m, undo)
		if err != nil {
			return err
		}
		res.MovementIDs = append(res.MovementIDs, id)
	}
	res.BaseQty = round3(res.BaseQty.Add(qty))
	return nil
}

// completeReceipt books the landed cost into the costing ledger and moves the
// quantity into Unrestricted. Quantity previously announced as In-Transit is
// transferred; any remainder is received directly.
func (c *Coordinator) completeReceipt(ctx context.Context, t Transition, line Line, step allocationStep, res *LineResult, undo *UndoLog) error {
	unitCost := step.unitCost

	strategy, err := StrategyFor(line.Item, c.repo, c.policy)
	if err != nil {
		return err
	}
	if err := strategy.Receive(ctx, step.scope, step.baseQty, unitCost, undo); err != nil {
		return err
	}

	fromTransit, err := c.drainBucket(ctx, step.key, BucketInTransit, step.baseQty, undo)
	if err != nil {
		return err
	}
	if err := c.adjust(ctx, step.key, BucketUnrestricted, step.baseQty, undo); err != nil {
		return err
	}

	if fromTransit.IsPositive() {
		m := c.movement(t, line, step, BucketInTransit, fromTransit, unitCost)
		m.Direction = DirectionOut
		id, err := c.ledger.Record(ctx, m, undo)
		if err != nil {
			return err
		}
		res.MovementIDs = append(res.MovementIDs, id)
	}
	m := c.movement(t, line, step, BucketUnrestricted, step.baseQty, unitCost)
	m.Direction = DirectionIn
	id, err := c.ledger.Record(ctx, m, undo)
	if err != nil {
		return err
	}
	res.MovementIDs = append(res.MovementIDs, id)

	res.BaseQty = round3(res.BaseQty.Add(step.baseQty))
	res.UnitCost = unitCost
	res.TotalValue = round4(res.TotalValue.Add(round4(step.baseQty.Mul(unitCost))))
	return nil
}

// completeDelivery prices the issue and fulfils the reservation. When less
// than the issued quantity is still reserved the rest is taken directly from
// Unrestricted.
func (c *Coordinator) completeDelivery(ctx context.Context, t Transition, line Line, step allocationStep, res *LineResult, undo *UndoLog) error {
	strategy, err := StrategyFor(line.Item, c.repo, c.policy)
	if err != nil {
		return err
	}
	issue, err := strategy.Issue(ctx, step.scope, step.baseQty, undo)
	if err != nil {
		return err
	}

	fromReserved, err := c.drainBucket(ctx, step.key, BucketReserved, step.baseQty, undo)
	if err != nil {
		return err
	}
	rest := round3(step.baseQty.Sub(fromReserved))
	if rest.IsPositive() {
		if err := c.adjust(ctx, step.key, BucketUnrestricted, rest.Neg(), undo); err != nil {
			return err
		}
	}

	if fromReserved.IsPositive() {
		m := c.movement(t, line, step, BucketReserved, fromReserved, issue.UnitCost)
		m.Direction = DirectionOut
		id, err := c.ledger.Record(ctx, m, undo)
		if err != nil {
			return err
		}
		res.MovementIDs = append(res.MovementIDs, id)
	}
	if rest.IsPositive() {
		m := c.movement(t, line, step, BucketUnrestricted, rest, issue.UnitCost)
		m.Direction = DirectionOut
		id, err := c.ledger.Record(ctx, m, undo)
		if err != nil {
			return err
		}
		res.MovementIDs = append(res.MovementIDs, id)
	}

	res.BaseQty = round3(res.BaseQty.Add(step.baseQty))
	res.UnitCost = issue.UnitCost
	res.TotalValue = round4(res.TotalValue.Add(round4(issue.Consumed.Mul(issue.UnitCost))))
	res.Shortfall = round3(res.Shortfall.Add(issue.Shortfall))
	return nil
}

// applyAdjustment books a signed correction against Unrestricted.
func (c *Coordinator) applyAdjustment(ctx context.Context, t Transition, line Line, step allocationStep, res *LineResult, undo *UndoLog) error {
	if t.Mode != ModeComplete {
		// Adjustment drafts carry no stock effect.
		return nil
	}
	strategy, err := StrategyFor(line.Item, c.repo, c.policy)
	if err != nil {
		return err
	}

	decrease := line.Decrease || step.negative
	if decrease {
		issue, err := strategy.Issue(ctx, step.scope, step.baseQty, undo)
		if err != nil {
			return err
		}
		if err := c.adjust(ctx, step.key, BucketUnrestricted, step.baseQty.Neg(), undo); err != nil {
			return err
		}
		m := c.movement(t, line, step, BucketUnrestricted, step.baseQty, issue.UnitCost)
		m.Direction = DirectionOut
		id, err := c.ledger.Record(ctx, m, undo)
		if err != nil {
			return err
		}
		res.MovementIDs = append(res.MovementIDs, id)
		res.UnitCost = issue.UnitCost
		res.Shortfall = round3(res.Shortfall.Add(issue.Shortfall))
		res.BaseQty = round3(res.BaseQty.Sub(step.baseQty))
		return nil
	}

	unitCost := round4(line.Pricing.UnitPrice)
	if err := strategy.Receive(ctx, step.scope, step.baseQty, unitCost, undo); err != nil {
		return err
	}
	if err := c.adjust(ctx, step.key, BucketUnrestricted, step.baseQty, undo); err != nil {
		return err
	}
	m := c.movement(t, line, step, BucketUnrestricted, step.baseQty, unitCost)
	m.Direction = DirectionIn
	id, err := c.ledger.Record(ctx, m, undo)
	if err != nil {
		return err
	}
	res.MovementIDs = append(res.MovementIDs, id)
	res.UnitCost = unitCost
	res.BaseQty = round3(res.BaseQty.Add(step.baseQty))
	return nil
}

// adjust wraps the balance store and registers the inverse on the undo log.
func (c *Coordinator) adjust(ctx context.Context, key StockKey, bucket Bucket, delta decimal.Decimal, undo *UndoLog) error {
	changes, err := c.balances.Adjust(ctx, key, bucket, delta)
	if err != nil {
		return err
	}
	for _, change := range changes {
		ch := change
		undo.Add(fmt.Sprintf("balance %s %s", ch.Key, bucket), func(ctx context.Context) error {
			return c.balances.Restore(ctx, ch)
		})
	}
	return nil
}

// drainBucket removes up to qty from the bucket and returns how much was
// actually taken. Used for the reserved/in-transit shortfall split on
// completion.
func (c *Coordinator) drainBucket(ctx context.Context, key StockKey, bucket Bucket, qty decimal.Decimal, undo *UndoLog) (decimal.Decimal, error) {
	rec, err := c.repo.GetBalanceForUpdate(ctx, key)
	if errors.Is(err, ErrBalanceNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	take := decimal.Min(rec.BucketQty(bucket), qty)
	take = round3(take)
	if !take.IsPositive() {
		return decimal.Zero, nil
	}
	if err := c.adjust(ctx, key, bucket, take.Neg(), undo); err != nil {
		return decimal.Decimal{}, err
	}
	return take, nil
}

func (c *Coordinator) movement(t Transition, line Line, step allocationStep, bucket Bucket, qty, unitCost decimal.Decimal) MovementRecord {
	return MovementRecord{
		TxType:     string(t.Kind),
		TxNumber:   t.DocNo,
		DocRef:     t.DocRef,
		Bucket:     bucket,
		Quantity:   qty,
		TxQuantity: step.txQty,
		TxUOM:      line.UOM,
		UnitPrice:  unitCost,
		MaterialID: line.Item.ID,
		PlantID:    t.PlantID,
		LocationID: step.key.LocationID,
		BatchID:    step.key.BatchID,
		SerialNo:   step.serialNo,
	}
}

type allocationDelta struct {
	alloc SubAllocation
	delta decimal.Decimal
}

// diffAllocations computes net quantity deltas per (location, batch) group
// between the previously applied and the newly requested sub-allocations, so
// an edit re-applies only the difference.
func diffAllocations(prev, next []SubAllocation) []allocationDelta {
	type groupKey struct {
		locationID int64
		batchID    string
	}
	groups := map[groupKey]*allocationDelta{}
	var order []groupKey

	add := func(a SubAllocation, sign decimal.Decimal) {
		k := groupKey{a.LocationID, a.BatchID}
		g, ok := groups[k]
		if !ok {
			g = &allocationDelta{alloc: SubAllocation{LocationID: a.LocationID, BatchID: a.BatchID}}
			groups[k] = g
			order = append(order, k)
		}
		g.delta = round3(g.delta.Add(a.Quantity.Mul(sign)))
	}
	for _, a := range prev {
		add(a, decimal.NewFromInt(-1))
	}
	for _, a := range next {
		add(a, decimal.NewFromInt(1))
	}

	result := make([]allocationDelta, 0, len(order))
	for _, k := range order {
		if g := groups[k]; !g.delta.IsZero() {
			result = append(result, *g)
		}
	}
	return result
}
