package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TxRepository exposes the transactional operations used by the engine. All
// mutating work of one document transition runs against a single instance.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, key StockKey) (BalanceRecord, error)
	UpsertBalance(ctx context.Context, rec BalanceRecord) error

	ListLotsForUpdate(ctx context.Context, scope CostScope) ([]FIFOLot, error)
	InsertLot(ctx context.Context, lot FIFOLot) (int64, error)
	UpdateLotAvailable(ctx context.Context, lotID int64, available decimal.Decimal) error
	DeleteLot(ctx context.Context, lotID int64) error
	MaxLotSequence(ctx context.Context, scope CostScope) (int64, error)

	GetWAForUpdate(ctx context.Context, scope CostScope) (WARecord, error)
	UpsertWA(ctx context.Context, rec WARecord) error
	DeleteWA(ctx context.Context, scope CostScope) error

	InsertMovement(ctx context.Context, m MovementRecord) error
	VoidMovement(ctx context.Context, id string) error
}

// MovementFilter narrows stock card queries.
type MovementFilter struct {
	MaterialID int64
	PlantID    int64
	LocationID int64
	BatchID    string
	From       time.Time
	To         time.Time
	Limit      int
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, key StockKey) (BalanceRecord, error)
	ListBalances(ctx context.Context, materialID, plantID int64) ([]BalanceRecord, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error)
	ListLots(ctx context.Context, scope CostScope) ([]FIFOLot, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const balanceColumns = `material_id, plant_id, location_id, batch_id, unrestricted_qty, reserved_qty, blocked_qty, quality_insp_qty, in_transit_qty, updated_at`

// GetBalance reads one balance record outside a transaction.
func (r *Repository) GetBalance(ctx context.Context, key StockKey) (BalanceRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM item_balances WHERE material_id=$1 AND plant_id=$2 AND location_id=$3 AND batch_id=$4`,
		key.MaterialID, key.PlantID, key.LocationID, key.BatchID)
	return scanBalance(row)
}

// ListBalances reads all balance records of a material at a plant.
func (r *Repository) ListBalances(ctx context.Context, materialID, plantID int64) ([]BalanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+balanceColumns+` FROM item_balances WHERE material_id=$1 AND plant_id=$2 ORDER BY location_id, batch_id`,
		materialID, plantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []BalanceRecord
	for rows.Next() {
		rec, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListMovements lists ledger entries for the stock card.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error) {
	query := `SELECT id, tx_type, tx_number, doc_ref, direction, bucket, quantity, tx_quantity, tx_uom, unit_price, total_price, material_id, plant_id, location_id, batch_id, serial_no, voided, posted_at FROM inventory_movements WHERE material_id=$1 AND plant_id=$2`
	args := []interface{}{filter.MaterialID, filter.PlantID}
	argCount := 2

	if filter.LocationID != 0 {
		argCount++
		query += ` AND location_id=$` + strconv.Itoa(argCount)
		args = append(args, filter.LocationID)
	}
	if filter.BatchID != "" {
		argCount++
		query += ` AND batch_id=$` + strconv.Itoa(argCount)
		args = append(args, filter.BatchID)
	}
	if !filter.From.IsZero() {
		argCount++
		query += ` AND posted_at >= $` + strconv.Itoa(argCount)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		argCount++
		query += ` AND posted_at <= $` + strconv.Itoa(argCount)
		args = append(args, filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	argCount++
	query += ` ORDER BY posted_at DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MovementRecord
	for rows.Next() {
		var (
			m                                 MovementRecord
			qty, txQty, unitPrice, totalPrice pgtype.Numeric
			direction, bucket                 string
		)
		err := rows.Scan(&m.ID, &m.TxType, &m.TxNumber, &m.DocRef, &direction, &bucket, &qty, &txQty, &m.TxUOM, &unitPrice, &totalPrice, &m.MaterialID, &m.PlantID, &m.LocationID, &m.BatchID, &m.SerialNo, &m.Voided, &m.PostedAt)
		if err != nil {
			return nil, err
		}
		m.Direction = Direction(direction)
		m.Bucket = Bucket(bucket)
		m.Quantity = numericToDecimal(qty)
		m.TxQuantity = numericToDecimal(txQty)
		m.UnitPrice = numericToDecimal(unitPrice)
		m.TotalPrice = numericToDecimal(totalPrice)
		records = append(records, m)
	}
	return records, rows.Err()
}

// ListLots lists FIFO lots ordered by sequence, outside a transaction.
func (r *Repository) ListLots(ctx context.Context, scope CostScope) ([]FIFOLot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, material_id, plant_id, batch_id, sequence, initial_qty, available_qty, cost_price, received_at FROM fifo_lots WHERE material_id=$1 AND plant_id=$2 AND batch_id=$3 ORDER BY sequence ASC`,
		scope.MaterialID, scope.PlantID, scope.BatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, key StockKey) (BalanceRecord, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM item_balances WHERE material_id=$1 AND plant_id=$2 AND location_id=$3 AND batch_id=$4 FOR UPDATE`,
		key.MaterialID, key.PlantID, key.LocationID, key.BatchID)
	return scanBalance(row)
}

func (r *txRepo) UpsertBalance(ctx context.Context, rec BalanceRecord) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO item_balances (material_id, plant_id, location_id, batch_id, unrestricted_qty, reserved_qty, blocked_qty, quality_insp_qty, in_transit_qty, balance_qty, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		 ON CONFLICT (material_id, plant_id, location_id, batch_id) DO UPDATE SET
		 unrestricted_qty = EXCLUDED.unrestricted_qty,
		 reserved_qty = EXCLUDED.reserved_qty,
		 blocked_qty = EXCLUDED.blocked_qty,
		 quality_insp_qty = EXCLUDED.quality_insp_qty,
		 in_transit_qty = EXCLUDED.in_transit_qty,
		 balance_qty = EXCLUDED.balance_qty,
		 updated_at = NOW()`,
		rec.Key.MaterialID, rec.Key.PlantID, rec.Key.LocationID, rec.Key.BatchID,
		decimalToNumeric(rec.Unrestricted), decimalToNumeric(rec.Reserved), decimalToNumeric(rec.Blocked),
		decimalToNumeric(rec.QualityInsp), decimalToNumeric(rec.InTransit), decimalToNumeric(rec.Total()))
	return err
}

func (r *txRepo) ListLotsForUpdate(ctx context.Context, scope CostScope) ([]FIFOLot, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT id, material_id, plant_id, batch_id, sequence, initial_qty, available_qty, cost_price, received_at FROM fifo_lots WHERE material_id=$1 AND plant_id=$2 AND batch_id=$3 ORDER BY sequence ASC FOR UPDATE`,
		scope.MaterialID, scope.PlantID, scope.BatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

func (r *txRepo) InsertLot(ctx context.Context, lot FIFOLot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO fifo_lots (material_id, plant_id, batch_id, sequence, initial_qty, available_qty, cost_price, received_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		lot.Scope.MaterialID, lot.Scope.PlantID, lot.Scope.BatchID, lot.Sequence,
		decimalToNumeric(lot.InitialQty), decimalToNumeric(lot.AvailableQty), decimalToNumeric(lot.CostPrice), lot.ReceivedAt).Scan(&id)
	return id, err
}

func (r *txRepo) UpdateLotAvailable(ctx context.Context, lotID int64, available decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE fifo_lots SET available_qty=$1 WHERE id=$2`, decimalToNumeric(available), lotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *txRepo) DeleteLot(ctx context.Context, lotID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM fifo_lots WHERE id=$1`, lotID)
	return err
}

func (r *txRepo) MaxLotSequence(ctx context.Context, scope CostScope) (int64, error) {
	var max int64
	err := r.tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM fifo_lots WHERE material_id=$1 AND plant_id=$2 AND batch_id=$3`,
		scope.MaterialID, scope.PlantID, scope.BatchID).Scan(&max)
	return max, err
}

func (r *txRepo) GetWAForUpdate(ctx context.Context, scope CostScope) (WARecord, error) {
	var (
		rec            WARecord
		qty, costPrice pgtype.Numeric
	)
	err := r.tx.QueryRow(ctx,
		`SELECT material_id, plant_id, batch_id, quantity, cost_price, updated_at FROM wa_costing WHERE material_id=$1 AND plant_id=$2 AND batch_id=$3 FOR UPDATE`,
		scope.MaterialID, scope.PlantID, scope.BatchID).
		Scan(&rec.Scope.MaterialID, &rec.Scope.PlantID, &rec.Scope.BatchID, &qty, &costPrice, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WARecord{Scope: scope}, ErrWARecordNotFound
	}
	if err != nil {
		return WARecord{}, err
	}
	rec.Quantity = numericToDecimal(qty)
	rec.CostPrice = numericToDecimal(costPrice)
	return rec, nil
}

func (r *txRepo) UpsertWA(ctx context.Context, rec WARecord) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO wa_costing (material_id, plant_id, batch_id, quantity, cost_price, updated_at) VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (material_id, plant_id, batch_id) DO UPDATE SET quantity = EXCLUDED.quantity, cost_price = EXCLUDED.cost_price, updated_at = NOW()`,
		rec.Scope.MaterialID, rec.Scope.PlantID, rec.Scope.BatchID, decimalToNumeric(rec.Quantity), decimalToNumeric(rec.CostPrice))
	return err
}

func (r *txRepo) DeleteWA(ctx context.Context, scope CostScope) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM wa_costing WHERE material_id=$1 AND plant_id=$2 AND batch_id=$3`,
		scope.MaterialID, scope.PlantID, scope.BatchID)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, m MovementRecord) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO inventory_movements (id, tx_type, tx_number, doc_ref, direction, bucket, quantity, tx_quantity, tx_uom, unit_price, total_price, material_id, plant_id, location_id, batch_id, serial_no, voided, posted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		m.ID, m.TxType, m.TxNumber, m.DocRef, string(m.Direction), string(m.Bucket),
		decimalToNumeric(m.Quantity), decimalToNumeric(m.TxQuantity), m.TxUOM,
		decimalToNumeric(m.UnitPrice), decimalToNumeric(m.TotalPrice),
		m.MaterialID, m.PlantID, m.LocationID, m.BatchID, m.SerialNo, m.Voided, m.PostedAt)
	return err
}

func (r *txRepo) VoidMovement(ctx context.Context, id string) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_movements SET voided = TRUE WHERE id=$1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (BalanceRecord, error) {
	var (
		rec                                          BalanceRecord
		unrestricted, reserved, blocked, qi, transit pgtype.Numeric
	)
	err := row.Scan(&rec.Key.MaterialID, &rec.Key.PlantID, &rec.Key.LocationID, &rec.Key.BatchID,
		&unrestricted, &reserved, &blocked, &qi, &transit, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceRecord{}, ErrBalanceNotFound
	}
	if err != nil {
		return BalanceRecord{}, err
	}
	rec.Unrestricted = numericToDecimal(unrestricted)
	rec.Reserved = numericToDecimal(reserved)
	rec.Blocked = numericToDecimal(blocked)
	rec.QualityInsp = numericToDecimal(qi)
	rec.InTransit = numericToDecimal(transit)
	return rec, nil
}

func collectLots(rows pgx.Rows) ([]FIFOLot, error) {
	var lots []FIFOLot
	for rows.Next() {
		var (
			lot                      FIFOLot
			initial, available, cost pgtype.Numeric
		)
		err := rows.Scan(&lot.ID, &lot.Scope.MaterialID, &lot.Scope.PlantID, &lot.Scope.BatchID, &lot.Sequence, &initial, &available, &cost, &lot.ReceivedAt)
		if err != nil {
			return nil, err
		}
		lot.InitialQty = numericToDecimal(initial)
		lot.AvailableQty = numericToDecimal(available)
		lot.CostPrice = numericToDecimal(cost)
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Decimal{}
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}
