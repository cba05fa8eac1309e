package synchronizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/myniax1024/exchange/internal/domain"
)

// PeerClient is a thin HTTP/JSON client for one peer ME's internal RPC
// surface. One PeerClient is created per peer at discovery time and reused
// for the lifetime of the process — no per-call connection setup, per the
// concurrency model's "shared resources" requirement.
type PeerClient struct {
	addr string
	http *http.Client
}

// NewPeerClient builds a client bound to a peer's base address
// (e.g. "http://127.0.0.1:9001"), with RPC calls bounded by timeout.
func NewPeerClient(addr string, timeout time.Duration) *PeerClient {
	return &PeerClient{addr: addr, http: &http.Client{Timeout: timeout}}
}

func (p *PeerClient) url(path string) string {
	return p.addr + path
}

func doJSON[Req any, Resp any](ctx context.Context, c *http.Client, method, url string, req *Req) (*Resp, error) {
	var body io.Reader
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("peer request failed: %w", err)
	}
	defer httpResp.Body.Close()

	var resp Resp
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// GetOrderBook queries the peer's L2 snapshot for symbol.
func (p *PeerClient) GetOrderBook(ctx context.Context, symbol string) (*domain.GetOrderBookResponse, error) {
	return doJSON[struct{}, domain.GetOrderBookResponse](ctx, p.http, http.MethodGet, p.url("/internal/v1/orderbook?symbol="+symbol), nil)
}

// SubmitOrder routes an order to the peer for matching.
func (p *PeerClient) SubmitOrder(ctx context.Context, req *domain.OrderRequest) (*domain.SubmitOrderResponse, error) {
	return doJSON[domain.OrderRequest, domain.SubmitOrderResponse](ctx, p.http, http.MethodPost, p.url("/internal/v1/order"), req)
}

// PutFill delivers a fill to the peer hosting the recipient client.
func (p *PeerClient) PutFill(ctx context.Context, req *domain.PutFillRequest) (*domain.PutFillResponse, error) {
	return doJSON[domain.PutFillRequest, domain.PutFillResponse](ctx, p.http, http.MethodPost, p.url("/internal/v1/fill"), req)
}

// CancelOrder forwards a cancel to the peer that owns the order.
func (p *PeerClient) CancelOrder(ctx context.Context, req *domain.CancelOrderRequest) (*domain.CancelOrderResponse, error) {
	return doJSON[domain.CancelOrderRequest, domain.CancelOrderResponse](ctx, p.http, http.MethodPost, p.url("/internal/v1/order/"+req.OrderID+"/cancel"), req)
}

// BroadcastOrderbook pushes an advisory snapshot to the peer.
func (p *PeerClient) BroadcastOrderbook(ctx context.Context, req *domain.BroadcastOrderbookRequest) error {
	_, err := doJSON[domain.BroadcastOrderbookRequest, struct{}](ctx, p.http, http.MethodPost, p.url("/internal/v1/orderbook/broadcast"), req)
	return err
}
