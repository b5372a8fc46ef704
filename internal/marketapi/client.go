package marketapi

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// BidDescriptor and TaskDescriptor are opaque documents from this
// package's point of view — the descriptor package renders them, this
// package only forwards the bytes. They're passed through as raw
// payloads (already-rendered templates) to keep the marketplace wire
// format entirely out of the core, per §1's explicit scope boundary.
type BidDescriptor = []byte
type TaskDescriptor = []byte

// ResourceSpec is the resources sub-document a bid predicts a price
// against (§4.1 PredictBid).
type ResourceSpec struct {
	RAMSizeMiB     int
	StorageSizeGiB int
	CPUCores       int
	SysbenchSingle int
	SysbenchMulti  int
	GPUCount       int
	GPUMemMiB      int
	EthHashrateMhs int
}

// MarketAPI is the normalized surface the rest of the system depends on
// (§4.1). Every operation either returns its described shape or, after
// exhausting retries, a zero value with no error — failures never cross
// this boundary as exceptions (§7 TransientMarket policy).
type MarketAPI interface {
	OrderCreate(ctx context.Context, bid BidDescriptor) (id string, ok bool)
	OrderList(ctx context.Context, limit int) []Order
	OrderStatus(ctx context.Context, id string) (*OrderStatusResult, bool)
	DealList(ctx context.Context, limit int) []Deal
	DealStatus(ctx context.Context, id string) (*DealStatusResult, bool)
	DealClose(ctx context.Context, id string, blacklist bool) bool
	TaskStart(ctx context.Context, dealID string, task TaskDescriptor) (id string, ok bool)
	TaskStatus(ctx context.Context, dealID, taskID string) (*TaskStatusResult, bool)
	PredictBid(ctx context.Context, resources ResourceSpec) (perHourUSD float64, ok bool)
	TaskLogs(ctx context.Context, dealID, taskID string, tailLines int, destPath string) bool
}

// Transport is the unretried, single-attempt marketplace call surface.
// It is what a concrete adapter (subprocess CLI, HTTP/RPC client) must
// implement; Client wraps it with the uniform retry policy of §4.1 so
// transport implementations stay free of retry/backoff concerns, the
// same separation the reference API client draws between its HTTP call
// and its retry loop.
type Transport interface {
	OrderCreate(ctx context.Context, bid BidDescriptor) (string, error)
	OrderList(ctx context.Context, limit int) ([]Order, error)
	OrderStatus(ctx context.Context, id string) (*OrderStatusResult, error)
	DealList(ctx context.Context, limit int) ([]Deal, error)
	DealStatus(ctx context.Context, id string) (*DealStatusResult, error)
	DealClose(ctx context.Context, id string, blacklist bool) error
	TaskStart(ctx context.Context, dealID string, task TaskDescriptor) (string, error)
	TaskStatus(ctx context.Context, dealID, taskID string) (*TaskStatusResult, error)
	PredictBid(ctx context.Context, resources ResourceSpec) (float64, error)
	TaskLogs(ctx context.Context, dealID, taskID string, tailLines int, destPath string) error
}

const (
	maxAttempts  = 3
	retrySleep   = 3 * time.Second
	rateLimitRPS = 5
	rateBurst    = 5
)

// Client is the retrying MarketAPI built on top of a Transport. Every
// retryable operation (all reads, DealClose, TaskStart, TaskStatus,
// TaskLogs) is attempted up to maxAttempts times with retrySleep between
// attempts; OrderCreate is attempted once. Outbound
// calls are additionally throttled by a shared rate.Limiter, the same
// role it plays in front of the reference HTTP client.
type Client struct {
	transport Transport
	limiter   *rate.Limiter
	sleep     func(time.Duration)
}

// NewClient builds a Client over the given Transport using real time.Sleep
// for backoff.
func NewClient(t Transport) *Client {
	return &Client{
		transport: t,
		limiter:   rate.NewLimiter(rate.Limit(rateLimitRPS), rateBurst),
		sleep:     time.Sleep,
	}
}

// NewClientWithSleep builds a Client with a replaceable sleep function,
// so tests can assert on retry timing without real delays.
func NewClientWithSleep(t Transport, sleep func(time.Duration)) *Client {
	c := NewClient(t)
	c.sleep = sleep
	return c
}

func (c *Client) wait(ctx context.Context) {
	_ = c.limiter.Wait(ctx)
}

func retry[T any](ctx context.Context, c *Client, retryable bool, op func() (T, error)) (T, bool) {
	attempts := 1
	if retryable {
		attempts = maxAttempts
	}

	var zero T
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return zero, false
		}
		c.wait(ctx)
		result, err := op()
		if err == nil {
			return result, true
		}
		if attempt < attempts-1 {
			c.sleep(retrySleep)
		}
	}
	return zero, false
}

func (c *Client) OrderCreate(ctx context.Context, bid BidDescriptor) (string, bool) {
	return retry(ctx, c, false, func() (string, error) {
		return c.transport.OrderCreate(ctx, bid)
	})
}

// OrderList normalizes every order's wire tag (base64, NUL-padded) into
// the plain string the rest of the system correlates against configured
// node tags (§4.1, §8 "tag round-trip" law) — the Transport underneath
// passes tags through verbatim.
func (c *Client) OrderList(ctx context.Context, limit int) []Order {
	orders, ok := retry(ctx, c, true, func() ([]Order, error) {
		return c.transport.OrderList(ctx, limit)
	})
	if !ok {
		return nil
	}
	for i := range orders {
		orders[i].Tag = decodeTag(orders[i].Tag)
	}
	return orders
}

func (c *Client) OrderStatus(ctx context.Context, id string) (*OrderStatusResult, bool) {
	result, ok := retry(ctx, c, true, func() (*OrderStatusResult, error) {
		return c.transport.OrderStatus(ctx, id)
	})
	if ok {
		result.Tag = decodeTag(result.Tag)
	}
	return result, ok
}

func (c *Client) DealList(ctx context.Context, limit int) []Deal {
	deals, ok := retry(ctx, c, true, func() ([]Deal, error) {
		return c.transport.DealList(ctx, limit)
	})
	if !ok {
		return nil
	}
	return deals
}

func (c *Client) DealStatus(ctx context.Context, id string) (*DealStatusResult, bool) {
	return retry(ctx, c, true, func() (*DealStatusResult, error) {
		return c.transport.DealStatus(ctx, id)
	})
}

func (c *Client) DealClose(ctx context.Context, id string, blacklist bool) bool {
	_, ok := retry(ctx, c, true, func() (struct{}, error) {
		return struct{}{}, c.transport.DealClose(ctx, id, blacklist)
	})
	return ok
}

// TaskStart retries at the transport level (it is explicitly listed
// among the retryable calls in §4.1) up to maxAttempts; the state
// machine additionally absorbs exhaustion by transitioning to
// TASK_FAILED_TO_START and retrying the whole DEAL_OPENED step on the
// next order cycle.
func (c *Client) TaskStart(ctx context.Context, dealID string, task TaskDescriptor) (string, bool) {
	return retry(ctx, c, true, func() (string, error) {
		return c.transport.TaskStart(ctx, dealID, task)
	})
}

func (c *Client) TaskStatus(ctx context.Context, dealID, taskID string) (*TaskStatusResult, bool) {
	return retry(ctx, c, true, func() (*TaskStatusResult, error) {
		return c.transport.TaskStatus(ctx, dealID, taskID)
	})
}

func (c *Client) PredictBid(ctx context.Context, resources ResourceSpec) (float64, bool) {
	return retry(ctx, c, true, func() (float64, error) {
		return c.transport.PredictBid(ctx, resources)
	})
}

func (c *Client) TaskLogs(ctx context.Context, dealID, taskID string, tailLines int, destPath string) bool {
	_, ok := retry(ctx, c, true, func() (struct{}, error) {
		return struct{}{}, c.transport.TaskLogs(ctx, dealID, taskID, tailLines, destPath)
	})
	return ok
}

var _ MarketAPI = (*Client)(nil)
