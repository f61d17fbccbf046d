package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MovementLedger appends immutable movement records. There is no update or
// delete path for business logic; rollbacks void entries and corrections are
// new offsetting entries.
type MovementLedger struct {
	repo TxRepository
}

// NewMovementLedger constructs the ledger.
func NewMovementLedger(repo TxRepository) *MovementLedger {
	return &MovementLedger{repo: repo}
}

// Record appends one entry and returns its id. The undo log receives a
// soft-void step, not a delete: voided entries stay visible for audit.
func (l *MovementLedger) Record(ctx context.Context, m MovementRecord, undo *UndoLog) (string, error) {
	if m.TxNumber == "" {
		return "", errors.New("inventory: movement requires a transaction number")
	}
	if m.Direction != DirectionIn && m.Direction != DirectionOut {
		return "", errors.New("inventory: movement direction must be IN or OUT")
	}
	if !m.Bucket.IsValid() {
		return "", errors.New("inventory: movement requires a valid bucket")
	}
	if !m.Quantity.IsPositive() {
		return "", ErrInvalidQuantity
	}
	m.ID = uuid.NewString()
	m.Quantity = round3(m.Quantity)
	m.TxQuantity = round3(m.TxQuantity)
	m.UnitPrice = round4(m.UnitPrice)
	m.TotalPrice = round4(m.Quantity.Mul(m.UnitPrice))
	if m.PostedAt.IsZero() {
		m.PostedAt = time.Now().UTC()
	}

	if err := l.repo.InsertMovement(ctx, m); err != nil {
		return "", err
	}
	if undo != nil {
		id := m.ID
		undo.Add("void movement "+id, func(ctx context.Context) error {
			return l.repo.VoidMovement(ctx, id)
		})
	}
	return m.ID, nil
}

// RecordTransfer writes the paired OUT and IN entries of a bucket-to-bucket
// move under the same transaction number.
func (l *MovementLedger) RecordTransfer(ctx context.Context, out, in MovementRecord, undo *UndoLog) (string, string, error) {
	if out.TxNumber != in.TxNumber {
		return "", "", errors.New("inventory: transfer entries must share a transaction number")
	}
	out.Direction = DirectionOut
	in.Direction = DirectionIn
	outID, err := l.Record(ctx, out, undo)
	if err != nil {
		return "", "", err
	}
	inID, err := l.Record(ctx, in, undo)
	if err != nil {
		return "", "", err
	}
	return outID, inID, nil
}
