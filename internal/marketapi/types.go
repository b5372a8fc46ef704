// Package marketapi is the normalized adapter over the opaque marketplace
// RPC/CLI described in spec §4.1 and §6. It is the only package in the
// system that knows about the marketplace's wire shapes; everything above
// it (worknode, fleet) depends only on the types in this file.
package marketapi

// TaskStatusCode enumerates the lifecycle of a launched task (§4.1).
type TaskStatusCode int

const (
	TaskStatusUnknown  TaskStatusCode = 0
	TaskStatusSpooling TaskStatusCode = 1
	TaskStatusSpawning TaskStatusCode = 2
	TaskStatusRunning  TaskStatusCode = 3
	TaskStatusFinished TaskStatusCode = 4
	TaskStatusBroken   TaskStatusCode = 5
)

// Order is one entry of an OrderList response.
type Order struct {
	ID    string
	Tag   string
	Price string // decimal wei-per-second, as returned on the wire
}

// OrderStatusResult is the normalized response of OrderStatus.
//
// orderStatus == 1 means the order is no longer open (matched or
// cancelled); DealID != "0" distinguishes matched from cancelled.
type OrderStatusResult struct {
	OrderStatus int
	Tag         string
	DealID      string
}

// Matched reports whether this order resulted in a struck deal.
func (r OrderStatusResult) Matched() bool {
	return r.OrderStatus == 1 && r.DealID != "" && r.DealID != "0"
}

// Cancelled reports whether this order is closed with no deal.
func (r OrderStatusResult) Cancelled() bool {
	return r.OrderStatus == 1 && (r.DealID == "" || r.DealID == "0")
}

// Deal is one entry of a DealList response (consumer-side active deals).
type Deal struct {
	ID string
}

// DealStatusResult is the normalized response of DealStatus.
//
// status == 2 means the deal is closed. Running is the set of task ids
// currently running on the deal's worker, if any. WorkerOffline is set
// when the worker reported no resources (no task ever ran).
type DealStatusResult struct {
	Status        int
	BidID         string
	Running       []string
	WorkerOffline bool
	Price         string
}

// Closed reports whether the deal has already been closed.
func (r DealStatusResult) Closed() bool {
	return r.Status == 2
}

// TaskStatusResult is the normalized response of TaskStatus.
type TaskStatusResult struct {
	Status TaskStatusCode
	Uptime int // seconds
}
