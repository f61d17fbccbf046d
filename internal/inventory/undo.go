package inventory

import (
	"context"
	"fmt"
)

// UndoLog collects inverse operations while a document transition is applied.
// On failure the coordinator replays them newest-first to restore balances
// and costing ledgers to their pre-document state. Movement entries are not
// restored this way: they are soft-voided because the ledger is an audit
// trail.
type UndoLog struct {
	steps []undoStep
}

type undoStep struct {
	label  string
	revert func(context.Context) error
}

// Add registers an inverse operation.
func (u *UndoLog) Add(label string, revert func(context.Context) error) {
	u.steps = append(u.steps, undoStep{label: label, revert: revert})
}

// Len reports how many inverse operations are registered.
func (u *UndoLog) Len() int {
	return len(u.steps)
}

// Revert replays the registered operations in reverse order. A failing revert
// is fatal: the error wraps ErrReversal and names the step, and replay stops
// so the remaining state is not made worse.
func (u *UndoLog) Revert(ctx context.Context) error {
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if err := step.revert(ctx); err != nil {
			return fmt.Errorf("%w: step %q: %v", ErrReversal, step.label, err)
		}
	}
	u.steps = nil
	return nil
}
