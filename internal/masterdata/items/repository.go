package items

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrItemNotFound indicates a missing item row.
var ErrItemNotFound = errors.New("items: item not found")

// ListFilters narrows item listings.
type ListFilters struct {
	Search   string
	IsActive *bool
	Limit    int
	Page     int
}

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Item, int, error)
	Get(ctx context.Context, id int64) (Item, error)
	GetByCode(ctx context.Context, code string) (Item, error)
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, id int64, item Item) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const itemColumns = `id, code, name, base_uom, costing_method, purchase_price, batch_managed, serial_managed, stock_controlled, uom_conversions, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM items WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		clause := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		clause := ` AND is_active = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY code ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, item)
	}
	return result, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

func (r *repository) GetByCode(ctx context.Context, code string) (Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE code = $1`, code)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

func (r *repository) Create(ctx context.Context, item Item) (Item, error) {
	conversions, err := json.Marshal(item.UOMConversions)
	if err != nil {
		return Item{}, err
	}
	now := time.Now()
	err = r.db.QueryRow(ctx,
		`INSERT INTO items (code, name, base_uom, costing_method, purchase_price, batch_managed, serial_managed, stock_controlled, uom_conversions, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		item.Code, item.Name, item.BaseUOM, string(item.CostingMethod), item.PurchasePrice, item.BatchManaged, item.SerialManaged, item.StockControlled, conversions, item.IsActive, now, now,
	).Scan(&item.ID)
	if err != nil {
		return Item{}, err
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return item, nil
}

func (r *repository) Update(ctx context.Context, id int64, item Item) error {
	conversions, err := json.Marshal(item.UOMConversions)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`UPDATE items SET code = $1, name = $2, base_uom = $3, costing_method = $4, purchase_price = $5, batch_managed = $6, serial_managed = $7, stock_controlled = $8, uom_conversions = $9, is_active = $10, updated_at = $11 WHERE id = $12`,
		item.Code, item.Name, item.BaseUOM, string(item.CostingMethod), item.PurchasePrice, item.BatchManaged, item.SerialManaged, item.StockControlled, conversions, item.IsActive, time.Now(), id,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item        Item
		method      string
		conversions []byte
	)
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.BaseUOM, &method, &item.PurchasePrice, &item.BatchManaged, &item.SerialManaged, &item.StockControlled, &conversions, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	item.CostingMethod = CostingMethod(method)
	if len(conversions) > 0 {
		if err := json.Unmarshal(conversions, &item.UOMConversions); err != nil {
			return Item{}, err
		}
	}
	return item, nil
}
