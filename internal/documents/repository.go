package documents

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-erp/tessera-erp/internal/inventory"
)

// Repository errors.
var (
	ErrDocumentNotFound = errors.New("documents: document not found")
	ErrOrderNotFound    = errors.New("documents: order not found")
)

// ListFilter narrows document listings.
type ListFilter struct {
	Kind    inventory.DocKind
	Status  Status
	PlantID int64
	Page    int
	Limit   int
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id int64) (Document, error)
	GetDocumentByNumber(ctx context.Context, docNumber string) (Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error)
	ReplaceLines(ctx context.Context, docID int64, lines []Line) error
	SetStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error
	DeleteDocument(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	AddFulfilled(ctx context.Context, orderLineID int64, delta string) error
	SetOrderStatus(ctx context.Context, id int64, status OrderStatus) error
}

// Repository persists documents and orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateDocument inserts the header and all lines in one transaction and
// fills in the generated ids.
func (r *Repository) CreateDocument(ctx context.Context, doc *Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO documents (doc_number, kind, plant_id, status, order_id, notes, created_by)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 RETURNING id, created_at, updated_at`,
		doc.DocNumber, doc.Kind, doc.PlantID, doc.Status, doc.OrderID, doc.Notes, doc.CreatedBy,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range doc.Lines {
		if err := insertLine(ctx, tx, doc.ID, &doc.Lines[i]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertLine(ctx context.Context, tx pgx.Tx, docID int64, line *Line) error {
	allocs, err := json.Marshal(line.SubAllocations)
	if err != nil {
		return err
	}
	line.DocumentID = docID
	return tx.QueryRow(ctx,
		`INSERT INTO document_lines (document_id, line_order, item_id, order_line_id, uom, quantity, unit_price, discount, discount_type, tax_rate, tax_inclusive, decrease, sub_allocations)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 RETURNING id`,
		docID, line.LineOrder, line.ItemID, line.OrderLineID, line.UOM,
		line.Quantity, line.UnitPrice, line.Discount, line.DiscountType,
		line.TaxRate, line.TaxInclusive, line.Decrease, allocs,
	).Scan(&line.ID)
}

const documentColumns = `id, doc_number, kind, plant_id, status, order_id, notes, created_by, completed_at, created_at, updated_at`

// GetDocument loads one document with its lines.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id)
	return r.scanDocumentWithLines(ctx, row)
}

// GetDocumentByNumber loads one document by its number.
func (r *Repository) GetDocumentByNumber(ctx context.Context, docNumber string) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_number=$1`, docNumber)
	return r.scanDocumentWithLines(ctx, row)
}

func (r *Repository) scanDocumentWithLines(ctx context.Context, row pgx.Row) (Document, error) {
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, err
	}
	doc.Lines, err = r.loadLines(ctx, doc.ID)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.DocNumber, &doc.Kind, &doc.PlantID, &doc.Status,
		&doc.OrderID, &doc.Notes, &doc.CreatedBy, &doc.CompletedAt, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *Repository) loadLines(ctx context.Context, docID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, document_id, line_order, item_id, order_line_id, uom, quantity, unit_price, discount, discount_type, tax_rate, tax_inclusive, decrease, sub_allocations
		 FROM document_lines WHERE document_id=$1 ORDER BY line_order, id`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		var allocs []byte
		err := rows.Scan(&line.ID, &line.DocumentID, &line.LineOrder, &line.ItemID, &line.OrderLineID,
			&line.UOM, &line.Quantity, &line.UnitPrice, &line.Discount, &line.DiscountType,
			&line.TaxRate, &line.TaxInclusive, &line.Decrease, &allocs)
		if err != nil {
			return nil, err
		}
		if len(allocs) > 0 {
			if err := json.Unmarshal(allocs, &line.SubAllocations); err != nil {
				return nil, err
			}
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListDocuments lists document headers, newest first.
func (r *Repository) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filter.Kind != "" {
		argCount++
		query += ` AND kind=$` + strconv.Itoa(argCount)
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		argCount++
		query += ` AND status=$` + strconv.Itoa(argCount)
		args = append(args, filter.Status)
	}
	if filter.PlantID > 0 {
		argCount++
		query += ` AND plant_id=$` + strconv.Itoa(argCount)
		args = append(args, filter.PlantID)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	argCount++
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ReplaceLines swaps the full line set of a draft document.
func (r *Repository) ReplaceLines(ctx context.Context, docID int64, lines []Line) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_lines WHERE document_id=$1`, docID); err != nil {
		return err
	}
	for i := range lines {
		if err := insertLine(ctx, tx, docID, &lines[i]); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE documents SET updated_at=now() WHERE id=$1`, docID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetStatus moves the document to a new lifecycle state.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE documents SET status=$1, completed_at=$2, updated_at=now() WHERE id=$3`,
		status, completedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// DeleteDocument removes a document and its lines. Used only to compensate a
// failed creation; applied documents are cancelled, never deleted.
func (r *Repository) DeleteDocument(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	return err
}

// CreateOrder inserts an order header and its lines.
func (r *Repository) CreateOrder(ctx context.Context, order *Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (order_number, kind, status, plant_id)
		 VALUES ($1,$2,$3,$4) RETURNING id, created_at, updated_at`,
		order.OrderNumber, order.Kind, order.Status, order.PlantID,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO order_lines (order_id, item_id, ordered_qty, fulfilled_qty)
			 VALUES ($1,$2,$3,$4) RETURNING id`,
			order.ID, line.ItemID, line.OrderedQty, line.FulfilledQty,
		).Scan(&line.ID)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetOrder loads one order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var order Order
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_number, kind, status, plant_id, created_at, updated_at FROM orders WHERE id=$1`, id,
	).Scan(&order.ID, &order.OrderNumber, &order.Kind, &order.Status, &order.PlantID, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, item_id, ordered_qty, fulfilled_qty FROM order_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.OrderedQty, &line.FulfilledQty); err != nil {
			return Order{}, err
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

// AddFulfilled adds delta (a decimal string, possibly negative) to the
// fulfilled quantity of one order line.
func (r *Repository) AddFulfilled(ctx context.Context, orderLineID int64, delta string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE order_lines SET fulfilled_qty = fulfilled_qty + $1::numeric WHERE id=$2`,
		delta, orderLineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetOrderStatus writes the rolled-up status.
func (r *Repository) SetOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status=$1, updated_at=now() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
