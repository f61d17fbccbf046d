package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/inventory"
	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
)

// Lifecycle errors.
var (
	ErrCannotEdit     = errors.New("documents: document can no longer be edited")
	ErrCannotComplete = errors.New("documents: document can no longer be completed")
	ErrCannotCancel   = errors.New("documents: document can no longer be cancelled")
	ErrValidation     = errors.New("documents: validation failed")
)

// InventoryPort applies document transitions against the stock engine.
type InventoryPort interface {
	ApplyTransition(ctx context.Context, t inventory.Transition, actorID int64) (inventory.Result, error)
}

// ItemPort resolves item master data.
type ItemPort interface {
	Get(ctx context.Context, id int64) (items.Item, error)
}

// Enqueuer schedules background work after a transition. Optional.
type Enqueuer interface {
	EnqueueRollup(ctx context.Context, orderID int64) error
}

// Service implements the document lifecycle. Every transition is pushed
// through the stock engine before the document state is persisted, so a
// rejected transition leaves the document untouched.
type Service struct {
	repo      RepositoryPort
	inventory InventoryPort
	items     ItemPort
	enqueuer  Enqueuer
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService constructs the documents service.
func NewService(repo RepositoryPort, inv InventoryPort, itemPort ItemPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		inventory: inv,
		items:     itemPort,
		validate:  validator.New(),
		logger:    logger,
	}
}

// SetEnqueuer wires the background job client.
func (s *Service) SetEnqueuer(e Enqueuer) {
	s.enqueuer = e
}

// Create persists a draft and applies its soft allocation: deliveries reserve
// stock, receipts announce in-transit quantity.
func (s *Service) Create(ctx context.Context, req CreateDocumentRequest, actorID int64) (Document, error) {
	if err := s.validate.Struct(req); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	kind := inventory.DocKind(req.Kind)
	lines, err := s.linesFromRequest(req.Lines)
	if err != nil {
		return Document{}, err
	}
	if err := validateLines(kind, lines); err != nil {
		return Document{}, err
	}

	doc := Document{
		DocNumber: req.DocNumber,
		Kind:      kind,
		PlantID:   req.PlantID,
		Status:    StatusDraft,
		OrderID:   req.OrderID,
		Notes:     req.Notes,
		CreatedBy: actorID,
		Lines:     lines,
	}
	if doc.DocNumber == "" {
		doc.DocNumber = generateDocNumber(kind)
	}
	if err := s.repo.CreateDocument(ctx, &doc); err != nil {
		return Document{}, err
	}

	transition, err := s.buildTransition(ctx, doc, inventory.ModeCreate, false, nil)
	if err != nil {
		s.compensateCreate(ctx, doc.ID)
		return Document{}, err
	}
	if _, err := s.inventory.ApplyTransition(ctx, transition, actorID); err != nil {
		s.compensateCreate(ctx, doc.ID)
		return Document{}, err
	}
	return doc, nil
}

func (s *Service) compensateCreate(ctx context.Context, docID int64) {
	if err := s.repo.DeleteDocument(ctx, docID); err != nil {
		s.logger.Error("delete document after failed allocation", slog.Int64("document_id", docID), slog.Any("error", err))
	}
}

// UpdateDraft replaces the line set of a draft and applies only the net stock
// delta of the change.
func (s *Service) UpdateDraft(ctx context.Context, id int64, req UpdateDocumentRequest, actorID int64) (Document, error) {
	if err := s.validate.Struct(req); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !doc.Status.CanEdit() {
		return Document{}, fmt.Errorf("%w: status %s", ErrCannotEdit, doc.Status)
	}

	newLines, err := s.linesFromRequest(req.Lines)
	if err != nil {
		return Document{}, err
	}
	if err := validateLines(doc.Kind, newLines); err != nil {
		return Document{}, err
	}

	prevLines := doc.Lines
	doc.Lines = newLines
	transition, err := s.buildTransition(ctx, doc, inventory.ModeEdit, false, prevLines)
	if err != nil {
		return Document{}, err
	}
	if _, err := s.inventory.ApplyTransition(ctx, transition, actorID); err != nil {
		return Document{}, err
	}
	if err := s.repo.ReplaceLines(ctx, doc.ID, doc.Lines); err != nil {
		return Document{}, err
	}
	return s.repo.GetDocument(ctx, id)
}

// Complete runs the document's terminal stock effect: receipts book landed
// cost and unrestricted stock, deliveries price and issue, adjustments post
// the signed correction. Parent order fulfilment is rolled up afterwards.
func (s *Service) Complete(ctx context.Context, id int64, actorID int64) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !doc.Status.CanComplete() {
		return Document{}, fmt.Errorf("%w: status %s", ErrCannotComplete, doc.Status)
	}

	transition, err := s.buildTransition(ctx, doc, inventory.ModeComplete, false, nil)
	if err != nil {
		return Document{}, err
	}
	result, err := s.inventory.ApplyTransition(ctx, transition, actorID)
	if err != nil {
		return Document{}, err
	}

	now := time.Now().UTC()
	if err := s.repo.SetStatus(ctx, doc.ID, StatusCompleted, &now); err != nil {
		return Document{}, err
	}
	for _, warning := range result.Warnings {
		s.logger.Warn("document completion warning", slog.String("doc_number", doc.DocNumber), slog.String("warning", warning))
	}

	if err := s.rollupFulfilment(ctx, doc, result); err != nil {
		// Completion already happened; fulfilment is re-derivable, so log and
		// let the recompute job repair it.
		s.logger.Error("rollup after completion", slog.String("doc_number", doc.DocNumber), slog.Any("error", err))
	}
	return s.repo.GetDocument(ctx, id)
}

// Cancel releases the draft's soft allocation and closes the document.
func (s *Service) Cancel(ctx context.Context, id int64, req CancelDocumentRequest, actorID int64) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !doc.Status.CanCancel() {
		return Document{}, fmt.Errorf("%w: status %s", ErrCannotCancel, doc.Status)
	}

	transition, err := s.buildTransition(ctx, doc, inventory.ModeCancel, req.KeepReservation, nil)
	if err != nil {
		return Document{}, err
	}
	if _, err := s.inventory.ApplyTransition(ctx, transition, actorID); err != nil {
		return Document{}, err
	}
	if err := s.repo.SetStatus(ctx, doc.ID, StatusCancelled, nil); err != nil {
		return Document{}, err
	}
	return s.repo.GetDocument(ctx, id)
}

// Get loads one document.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// List lists documents.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, error) {
	return s.repo.ListDocuments(ctx, filter)
}

// CreateOrder persists a rollup parent order in Pending state.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if err := s.validate.Struct(req); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	order := Order{
		OrderNumber: req.OrderNumber,
		Kind:        OrderKind(req.Kind),
		Status:      OrderPending,
		PlantID:     req.PlantID,
	}
	for _, lr := range req.Lines {
		if !lr.OrderedQty.IsPositive() {
			return Order{}, fmt.Errorf("%w: ordered quantity must be positive", ErrValidation)
		}
		order.Lines = append(order.Lines, OrderLine{ItemID: lr.ItemID, OrderedQty: lr.OrderedQty})
	}
	if err := s.repo.CreateOrder(ctx, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// GetOrder loads one order with lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// RecomputeOrder re-derives the parent status from its lines. Idempotent;
// also invoked by the background recompute task.
func (s *Service) RecomputeOrder(ctx context.Context, orderID int64) (OrderStatus, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	status := RollupStatus(order.Lines)
	if status == order.Status {
		return status, nil
	}
	if err := s.repo.SetOrderStatus(ctx, orderID, status); err != nil {
		return "", err
	}
	return status, nil
}

// rollupFulfilment books the completed base quantities onto the parent order
// lines and recomputes the order status.
func (s *Service) rollupFulfilment(ctx context.Context, doc Document, result inventory.Result) error {
	if doc.OrderID == nil {
		return nil
	}
	applied := map[int64]decimal.Decimal{}
	for _, lr := range result.Lines {
		applied[lr.LineID] = lr.BaseQty
	}
	for _, line := range doc.Lines {
		if line.OrderLineID == nil {
			continue
		}
		qty, ok := applied[line.ID]
		if !ok || qty.IsZero() {
			continue
		}
		if err := s.repo.AddFulfilled(ctx, *line.OrderLineID, qty.String()); err != nil {
			return err
		}
	}
	if _, err := s.RecomputeOrder(ctx, *doc.OrderID); err != nil {
		return err
	}
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueRollup(ctx, *doc.OrderID); err != nil {
			s.logger.Warn("enqueue rollup recompute", slog.Int64("order_id", *doc.OrderID), slog.Any("error", err))
		}
	}
	return nil
}

// buildTransition maps a document onto the stock engine's transition input,
// resolving item master data per line.
func (s *Service) buildTransition(ctx context.Context, doc Document, mode inventory.Mode, keepReservation bool, prevLines []Line) (inventory.Transition, error) {
	// Edit diffs pair stored and replacement lines by LineOrder: replacement
	// lines are not persisted yet and carry no row ID.
	prevByOrder := map[int][]inventory.SubAllocation{}
	for _, prev := range prevLines {
		prevByOrder[prev.LineOrder] = prev.SubAllocations
	}
	seenOrder := map[int]bool{}

	cache := map[int64]items.Item{}
	t := inventory.Transition{
		Kind:            doc.Kind,
		Mode:            mode,
		DocNo:           doc.DocNumber,
		DocRef:          fmt.Sprintf("document:%d", doc.ID),
		PlantID:         doc.PlantID,
		KeepReservation: keepReservation,
	}
	for _, line := range doc.Lines {
		item, ok := cache[line.ItemID]
		if !ok {
			var err error
			item, err = s.items.Get(ctx, line.ItemID)
			if err != nil {
				return inventory.Transition{}, fmt.Errorf("resolve item %d: %w", line.ItemID, err)
			}
			cache[line.ItemID] = item
		}
		t.Lines = append(t.Lines, inventory.Line{
			LineID: line.ID,
			Item:   item,
			UOM:    line.UOM,
			Pricing: inventory.LandedCostInput{
				UnitPrice:    line.UnitPrice,
				Discount:     line.Discount,
				DiscountType: inventory.DiscountType(line.DiscountType),
				TaxRate:      line.TaxRate,
				TaxInclusive: line.TaxInclusive,
			},
			Decrease:           line.Decrease,
			SubAllocations:     line.SubAllocations,
			PrevSubAllocations: prevByOrder[line.LineOrder],
		})
		seenOrder[line.LineOrder] = true
	}

	// A line dropped by the edit still has to release its prior allocation.
	for _, prev := range prevLines {
		if seenOrder[prev.LineOrder] || len(prev.SubAllocations) == 0 {
			continue
		}
		item, ok := cache[prev.ItemID]
		if !ok {
			var err error
			item, err = s.items.Get(ctx, prev.ItemID)
			if err != nil {
				return inventory.Transition{}, fmt.Errorf("resolve item %d: %w", prev.ItemID, err)
			}
			cache[prev.ItemID] = item
		}
		t.Lines = append(t.Lines, inventory.Line{
			LineID:             prev.ID,
			Item:               item,
			UOM:                prev.UOM,
			Decrease:           prev.Decrease,
			PrevSubAllocations: prev.SubAllocations,
		})
	}
	return t, nil
}

func (s *Service) linesFromRequest(reqs []LineRequest) ([]Line, error) {
	var lines []Line
	for i, lr := range reqs {
		order := lr.LineOrder
		if order == 0 {
			order = i + 1
		}
		line := Line{
			LineOrder:    order,
			ItemID:       lr.ItemID,
			OrderLineID:  lr.OrderLineID,
			UOM:          strings.ToUpper(strings.TrimSpace(lr.UOM)),
			UnitPrice:    lr.UnitPrice,
			Discount:     lr.Discount,
			DiscountType: lr.DiscountType,
			TaxRate:      lr.TaxRate,
			TaxInclusive: lr.TaxInclusive,
			Decrease:     lr.Decrease,
		}
		total := decimal.Zero
		for _, ar := range lr.Allocations {
			line.SubAllocations = append(line.SubAllocations, inventory.SubAllocation{
				LocationID: ar.LocationID,
				BatchID:    ar.BatchID,
				Quantity:   ar.Quantity,
				SerialNo:   ar.SerialNo,
			})
			total = total.Add(ar.Quantity)
		}
		line.Quantity = total
		lines = append(lines, line)
	}
	return lines, nil
}

func generateDocNumber(kind inventory.DocKind) string {
	prefix := "DOC"
	switch kind {
	case inventory.KindGoodsReceipt:
		prefix = "GR"
	case inventory.KindGoodsDelivery:
		prefix = "GD"
	case inventory.KindStockAdjustment:
		prefix = "ADJ"
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.NewString()[:8]))
}
