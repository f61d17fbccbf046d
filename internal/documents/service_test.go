package documents

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tessera-erp/tessera-erp/internal/inventory"
	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
)

type memoryDocRepo struct {
	docs       map[int64]*Document
	orders     map[int64]*Order
	orderLines map[int64]*OrderLine
	nextDocID  int64
	nextLineID int64
}

func newMemoryDocRepo() *memoryDocRepo {
	return &memoryDocRepo{
		docs:       map[int64]*Document{},
		orders:     map[int64]*Order{},
		orderLines: map[int64]*OrderLine{},
	}
}

func (r *memoryDocRepo) CreateDocument(ctx context.Context, doc *Document) error {
	r.nextDocID++
	doc.ID = r.nextDocID
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	for i := range doc.Lines {
		r.nextLineID++
		doc.Lines[i].ID = r.nextLineID
		doc.Lines[i].DocumentID = doc.ID
	}
	clone := *doc
	clone.Lines = append([]Line(nil), doc.Lines...)
	r.docs[doc.ID] = &clone
	return nil
}

func (r *memoryDocRepo) GetDocument(ctx context.Context, id int64) (Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	out := *doc
	out.Lines = append([]Line(nil), doc.Lines...)
	return out, nil
}

func (r *memoryDocRepo) GetDocumentByNumber(ctx context.Context, docNumber string) (Document, error) {
	for _, doc := range r.docs {
		if doc.DocNumber == docNumber {
			return r.GetDocument(ctx, doc.ID)
		}
	}
	return Document{}, ErrDocumentNotFound
}

func (r *memoryDocRepo) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error) {
	var out []Document
	for _, doc := range r.docs {
		if filter.Kind != "" && doc.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryDocRepo) ReplaceLines(ctx context.Context, docID int64, lines []Line) error {
	doc, ok := r.docs[docID]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Lines = nil
	for i := range lines {
		r.nextLineID++
		lines[i].ID = r.nextLineID
		lines[i].DocumentID = docID
		doc.Lines = append(doc.Lines, lines[i])
	}
	return nil
}

func (r *memoryDocRepo) SetStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error {
	doc, ok := r.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = status
	doc.CompletedAt = completedAt
	return nil
}

func (r *memoryDocRepo) DeleteDocument(ctx context.Context, id int64) error {
	delete(r.docs, id)
	return nil
}

func (r *memoryDocRepo) CreateOrder(ctx context.Context, order *Order) error {
	order.ID = int64(len(r.orders) + 1)
	for i := range order.Lines {
		r.nextLineID++
		order.Lines[i].ID = r.nextLineID
		order.Lines[i].OrderID = order.ID
		r.orderLines[order.Lines[i].ID] = &order.Lines[i]
	}
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

func (r *memoryDocRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	out := *order
	out.Lines = nil
	for _, line := range r.orderLines {
		if line.OrderID == id {
			out.Lines = append(out.Lines, *line)
		}
	}
	return out, nil
}

func (r *memoryDocRepo) AddFulfilled(ctx context.Context, orderLineID int64, delta string) error {
	line, ok := r.orderLines[orderLineID]
	if !ok {
		return ErrOrderNotFound
	}
	line.FulfilledQty = line.FulfilledQty.Add(decimal.RequireFromString(delta))
	return nil
}

func (r *memoryDocRepo) SetOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	order, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	order.Status = status
	return nil
}

// fakeInventory records applied transitions and can be told to fail.
type fakeInventory struct {
	applied []inventory.Transition
	fail    error
	result  inventory.Result
}

func (f *fakeInventory) ApplyTransition(ctx context.Context, t inventory.Transition, actorID int64) (inventory.Result, error) {
	if f.fail != nil {
		return inventory.Result{}, f.fail
	}
	f.applied = append(f.applied, t)
	if len(f.result.Lines) > 0 {
		return f.result, nil
	}
	res := inventory.Result{}
	for _, line := range t.Lines {
		total := decimal.Zero
		for _, alloc := range line.SubAllocations {
			total = total.Add(alloc.Quantity)
		}
		res.Lines = append(res.Lines, inventory.LineResult{LineID: line.LineID, BaseQty: total})
	}
	return res, nil
}

type fakeItems struct {
	items map[int64]items.Item
}

func (f *fakeItems) Get(ctx context.Context, id int64) (items.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return items.Item{}, items.ErrItemNotFound
	}
	return item, nil
}

func testService(t *testing.T) (*Service, *memoryDocRepo, *fakeInventory) {
	t.Helper()
	repo := newMemoryDocRepo()
	inv := &fakeInventory{}
	stock := &fakeItems{items: map[int64]items.Item{
		1: {ID: 1, Code: "MAT-1", Name: "Material 1", BaseUOM: "EA", CostingMethod: items.CostingFIFO, StockControlled: true, IsActive: true},
	}}
	return NewService(repo, inv, stock, slog.Default()), repo, inv
}

func receiptRequest(qty string) CreateDocumentRequest {
	return CreateDocumentRequest{
		Kind:    string(inventory.KindGoodsReceipt),
		PlantID: 1,
		Lines: []LineRequest{{
			ItemID:      1,
			UOM:         "EA",
			UnitPrice:   decimal.RequireFromString("10.00"),
			Allocations: []SubAllocationRequest{{LocationID: 10, Quantity: decimal.RequireFromString(qty)}},
		}},
	}
}

func TestCreateDocumentAppliesSoftAllocation(t *testing.T) {
	svc, repo, inv := testService(t)

	doc, err := svc.Create(context.Background(), receiptRequest("25"), 7)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, doc.Status)
	require.NotEmpty(t, doc.DocNumber)
	require.Len(t, doc.Lines, 1)
	require.True(t, doc.Lines[0].Quantity.Equal(decimal.RequireFromString("25")))

	require.Len(t, inv.applied, 1)
	require.Equal(t, inventory.ModeCreate, inv.applied[0].Mode)
	require.Equal(t, inventory.KindGoodsReceipt, inv.applied[0].Kind)
	require.Equal(t, doc.DocNumber, inv.applied[0].DocNo)

	_, err = repo.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
}

func TestCreateDocumentCompensatesOnStockFailure(t *testing.T) {
	svc, repo, inv := testService(t)
	inv.fail = inventory.ErrInsufficientStock

	_, err := svc.Create(context.Background(), receiptRequest("25"), 7)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Empty(t, repo.docs, "failed creation must not leave a document behind")
}

func TestCreateDocumentRejectsUnknownItem(t *testing.T) {
	svc, _, _ := testService(t)
	req := receiptRequest("5")
	req.Lines[0].ItemID = 99

	_, err := svc.Create(context.Background(), req, 7)
	require.ErrorIs(t, err, items.ErrItemNotFound)
}

func TestCompleteTransitionsAndRollsUp(t *testing.T) {
	svc, repo, inv := testService(t)

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		OrderNumber: "PO-1",
		Kind:        string(OrderPurchase),
		PlantID:     1,
		Lines:       []OrderLineRequest{{ItemID: 1, OrderedQty: decimal.RequireFromString("25")}},
	})
	require.NoError(t, err)
	require.Equal(t, OrderPending, order.Status)

	req := receiptRequest("25")
	req.OrderID = &order.ID
	req.Lines[0].OrderLineID = &order.Lines[0].ID
	doc, err := svc.Create(context.Background(), req, 7)
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), doc.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	require.Len(t, inv.applied, 2)
	require.Equal(t, inventory.ModeComplete, inv.applied[1].Mode)

	rolled, err := repo.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderCompleted, rolled.Status)
	require.True(t, rolled.Lines[0].FulfilledQty.Equal(decimal.RequireFromString("25")))
}

func TestCompleteRejectsCompletedDocument(t *testing.T) {
	svc, _, _ := testService(t)
	doc, err := svc.Create(context.Background(), receiptRequest("5"), 7)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), doc.ID, 7)
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), doc.ID, 7)
	require.ErrorIs(t, err, ErrCannotComplete)
}

func TestUpdateDraftAppliesEditDiff(t *testing.T) {
	svc, _, inv := testService(t)
	doc, err := svc.Create(context.Background(), receiptRequest("25"), 7)
	require.NoError(t, err)

	updated, err := svc.UpdateDraft(context.Background(), doc.ID, UpdateDocumentRequest{
		Lines: []LineRequest{{
			ItemID:      1,
			UOM:         "EA",
			UnitPrice:   decimal.RequireFromString("10.00"),
			Allocations: []SubAllocationRequest{{LocationID: 10, Quantity: decimal.RequireFromString("30")}},
		}},
	}, 7)
	require.NoError(t, err)
	require.True(t, updated.Lines[0].Quantity.Equal(decimal.RequireFromString("30")))

	edit := inv.applied[len(inv.applied)-1]
	require.Equal(t, inventory.ModeEdit, edit.Mode)
	require.Len(t, edit.Lines, 1)
	require.Len(t, edit.Lines[0].PrevSubAllocations, 1)
	require.True(t, edit.Lines[0].PrevSubAllocations[0].Quantity.Equal(decimal.RequireFromString("25")))
}

func TestUpdateDraftReleasesRemovedLines(t *testing.T) {
	svc, _, inv := testService(t)

	req := receiptRequest("25")
	req.Lines = append(req.Lines, LineRequest{
		ItemID:      1,
		UOM:         "EA",
		UnitPrice:   decimal.RequireFromString("10.00"),
		Allocations: []SubAllocationRequest{{LocationID: 30, Quantity: decimal.RequireFromString("5")}},
	})
	doc, err := svc.Create(context.Background(), req, 7)
	require.NoError(t, err)
	require.Len(t, doc.Lines, 2)

	// Keep only the first line; the dropped line must still surface its
	// prior allocation so the reservation is released.
	_, err = svc.UpdateDraft(context.Background(), doc.ID, UpdateDocumentRequest{
		Lines: []LineRequest{{
			LineOrder:   1,
			ItemID:      1,
			UOM:         "EA",
			UnitPrice:   decimal.RequireFromString("10.00"),
			Allocations: []SubAllocationRequest{{LocationID: 10, Quantity: decimal.RequireFromString("25")}},
		}},
	}, 7)
	require.NoError(t, err)

	edit := inv.applied[len(inv.applied)-1]
	require.Equal(t, inventory.ModeEdit, edit.Mode)
	require.Len(t, edit.Lines, 2)

	kept := edit.Lines[0]
	require.Len(t, kept.PrevSubAllocations, 1)
	require.True(t, kept.PrevSubAllocations[0].Quantity.Equal(decimal.RequireFromString("25")))

	removed := edit.Lines[1]
	require.Empty(t, removed.SubAllocations)
	require.Len(t, removed.PrevSubAllocations, 1)
	require.Equal(t, int64(30), removed.PrevSubAllocations[0].LocationID)
	require.True(t, removed.PrevSubAllocations[0].Quantity.Equal(decimal.RequireFromString("5")))
}

func TestUpdateDraftRejectsCancelledDocument(t *testing.T) {
	svc, _, _ := testService(t)
	doc, err := svc.Create(context.Background(), receiptRequest("5"), 7)
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), doc.ID, CancelDocumentRequest{}, 7)
	require.NoError(t, err)

	_, err = svc.UpdateDraft(context.Background(), doc.ID, UpdateDocumentRequest{
		Lines: receiptRequest("5").Lines,
	}, 7)
	require.ErrorIs(t, err, ErrCannotEdit)
}

func TestCancelPassesKeepReservation(t *testing.T) {
	svc, _, inv := testService(t)
	req := receiptRequest("5")
	req.Kind = string(inventory.KindGoodsDelivery)
	doc, err := svc.Create(context.Background(), req, 7)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), doc.ID, CancelDocumentRequest{KeepReservation: true}, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	last := inv.applied[len(inv.applied)-1]
	require.Equal(t, inventory.ModeCancel, last.Mode)
	require.True(t, last.KeepReservation)
}

func TestCreateRejectsNegativeQuantityOutsideAdjustments(t *testing.T) {
	svc, _, _ := testService(t)
	req := receiptRequest("-5")
	_, err := svc.Create(context.Background(), req, 7)
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateAllowsSignedAdjustmentQuantities(t *testing.T) {
	svc, _, inv := testService(t)
	req := receiptRequest("-5")
	req.Kind = string(inventory.KindStockAdjustment)
	_, err := svc.Create(context.Background(), req, 7)
	require.NoError(t, err)
	require.Equal(t, inventory.KindStockAdjustment, inv.applied[0].Kind)
}

func TestRecomputeOrderIsIdempotent(t *testing.T) {
	svc, repo, _ := testService(t)
	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		OrderNumber: "SO-1",
		Kind:        string(OrderSales),
		PlantID:     1,
		Lines:       []OrderLineRequest{{ItemID: 1, OrderedQty: decimal.RequireFromString("10")}},
	})
	require.NoError(t, err)
	require.NoError(t, repo.AddFulfilled(context.Background(), order.Lines[0].ID, "4"))

	status, err := svc.RecomputeOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderProcessing, status)

	again, err := svc.RecomputeOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, status, again)
}

func TestCompleteUnknownDocument(t *testing.T) {
	svc, _, _ := testService(t)
	_, err := svc.Complete(context.Background(), 404, 7)
	require.ErrorIs(t, err, ErrDocumentNotFound)
}
