package marketapi

import "context"

// OrderOpsTransport is the order-cancellation surface used only by the
// operator's recreate-orders escape hatch (§12) — the core state machine
// never cancels an order itself, it only observes cancellation via
// OrderStatus.
type OrderOpsTransport interface {
	OrderCancel(ctx context.Context, id string) error
}

// OrderOps is a thin best-effort wrapper over OrderOpsTransport.
type OrderOps struct {
	transport OrderOpsTransport
}

// NewOrderOps builds an OrderOps over t.
func NewOrderOps(t OrderOpsTransport) *OrderOps {
	return &OrderOps{transport: t}
}

// Cancel cancels order id, reporting whether it succeeded.
func (o *OrderOps) Cancel(ctx context.Context, id string) bool {
	return o.transport.OrderCancel(ctx, id) == nil
}
