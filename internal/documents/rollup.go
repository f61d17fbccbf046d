package documents

// OrderStatus is the rollup state derived from an order's line fulfilment.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderCompleted  OrderStatus = "COMPLETED"
)

// RollupStatus derives the parent order status from its lines. The function
// is pure and idempotent: recomputing an already rolled-up order yields the
// same status.
//
// An order is Completed when every line is fulfilled to at least its ordered
// quantity, Processing when any quantity has been fulfilled, and Pending
// otherwise. Orders without lines roll up to Pending.
func RollupStatus(lines []OrderLine) OrderStatus {
	if len(lines) == 0 {
		return OrderPending
	}
	completed := true
	touched := false
	for _, line := range lines {
		if line.FulfilledQty.IsPositive() {
			touched = true
		}
		if line.FulfilledQty.LessThan(line.OrderedQty) {
			completed = false
		}
	}
	switch {
	case completed:
		return OrderCompleted
	case touched:
		return OrderProcessing
	default:
		return OrderPending
	}
}
