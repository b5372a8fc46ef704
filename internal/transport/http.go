// Package transport implements marketapi.Transport against the opaque
// marketplace's HTTP API, the concrete collaborator the core depends on
// only through marketapi's normalized interface (§1, §4.1). Its shape
// follows the teacher's SpaceTraders HTTP client: a single *http.Client
// with a fixed timeout, JSON request/response bodies, one method per
// endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/marketfleet/supervisor/internal/marketapi"
)

const defaultTimeout = 30 * time.Second

// HTTPTransport calls the marketplace node's REST API directly. It never
// retries or rate-limits on its own — that policy lives one layer up in
// marketapi.Client (§4.1).
type HTTPTransport struct {
	httpClient *http.Client
	baseURL    string
	consumerID string
}

// NewHTTPTransport builds a transport against the marketplace node at
// baseURL (the configured node_address, §6), scoped to consumerID (the
// operator's derived on-chain address) for every listing call — mirroring
// deal.list(filters={"consumerID": eth_addr}) so OrderList/DealList only
// ever see this operator's own orders and deals (§10).
func NewHTTPTransport(baseURL, consumerID string) *HTTPTransport {
	return &HTTPTransport{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		consumerID: consumerID,
	}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s %s: %w", method, path, err)
	}
	return nil
}

// doRaw posts body as-is (already-rendered bid/task descriptor bytes,
// opaque to this package per §1) rather than re-encoding it as JSON.
func (t *HTTPTransport) doRaw(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

func (t *HTTPTransport) OrderCreate(ctx context.Context, bid marketapi.BidDescriptor) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := t.doRaw(ctx, "/order.create", bid, &out)
	return out.ID, err
}

func (t *HTTPTransport) OrderList(ctx context.Context, limit int) ([]marketapi.Order, error) {
	var out struct {
		Orders []marketapi.Order `json:"orders"`
	}
	err := t.do(ctx, http.MethodGet, fmt.Sprintf("/order.list?limit=%d&consumer_id=%s", limit, t.consumerID), nil, &out)
	return out.Orders, err
}

func (t *HTTPTransport) OrderStatus(ctx context.Context, id string) (*marketapi.OrderStatusResult, error) {
	var out marketapi.OrderStatusResult
	err := t.do(ctx, http.MethodGet, "/order.status?id="+id, nil, &out)
	return &out, err
}

func (t *HTTPTransport) DealList(ctx context.Context, limit int) ([]marketapi.Deal, error) {
	var out struct {
		Deals []marketapi.Deal `json:"deals"`
	}
	err := t.do(ctx, http.MethodGet, fmt.Sprintf("/deal.list?limit=%d&consumer_id=%s", limit, t.consumerID), nil, &out)
	return out.Deals, err
}

func (t *HTTPTransport) DealStatus(ctx context.Context, id string) (*marketapi.DealStatusResult, error) {
	var out marketapi.DealStatusResult
	err := t.do(ctx, http.MethodGet, "/deal.status?id="+id, nil, &out)
	return &out, err
}

func (t *HTTPTransport) DealClose(ctx context.Context, id string, blacklist bool) error {
	return t.do(ctx, http.MethodPost, "/deal.close", map[string]interface{}{
		"id": id, "blacklist": blacklist,
	}, nil)
}

func (t *HTTPTransport) TaskStart(ctx context.Context, dealID string, task marketapi.TaskDescriptor) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := t.doRaw(ctx, "/task.start?deal_id="+dealID, task, &out)
	return out.ID, err
}

func (t *HTTPTransport) TaskStatus(ctx context.Context, dealID, taskID string) (*marketapi.TaskStatusResult, error) {
	var out marketapi.TaskStatusResult
	err := t.do(ctx, http.MethodGet, fmt.Sprintf("/task.status?deal_id=%s&task_id=%s", dealID, taskID), nil, &out)
	return &out, err
}

func (t *HTTPTransport) PredictBid(ctx context.Context, resources marketapi.ResourceSpec) (float64, error) {
	var out struct {
		PerHourUSD float64 `json:"perHourUSD"`
	}
	err := t.do(ctx, http.MethodPost, "/bid.predict", resources, &out)
	return out.PerHourUSD, err
}

func (t *HTTPTransport) TaskLogs(ctx context.Context, dealID, taskID string, tailLines int, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/task.logs?deal_id=%s&task_id=%s&tail=%d", t.baseURL, dealID, taskID, tailLines), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request task.logs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("task.logs: status %d", resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create log file %s: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write log file %s: %w", destPath, err)
	}
	return nil
}

func (t *HTTPTransport) BlacklistList(ctx context.Context) ([]string, error) {
	var out struct {
		Addresses []string `json:"addresses"`
	}
	err := t.do(ctx, http.MethodGet, "/blacklist.list", nil, &out)
	return out.Addresses, err
}

func (t *HTTPTransport) BlacklistRemove(ctx context.Context, address string) error {
	return t.do(ctx, http.MethodPost, "/blacklist.remove", map[string]string{"address": address}, nil)
}

func (t *HTTPTransport) OrderCancel(ctx context.Context, id string) error {
	return t.do(ctx, http.MethodPost, "/order.cancel", map[string]string{"id": id}, nil)
}

var _ marketapi.Transport = (*HTTPTransport)(nil)
var _ marketapi.BlacklistTransport = (*HTTPTransport)(nil)
var _ marketapi.OrderOpsTransport = (*HTTPTransport)(nil)
