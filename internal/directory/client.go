package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/myniax1024/exchange/internal/domain"
)

// Client is a match engine's view of the exchange's directory routes.
type Client struct {
	addr string
	http *http.Client
}

// NewClient builds a directory client bound to the exchange's base address.
func NewClient(exchangeAddr string, timeout time.Duration) *Client {
	return &Client{addr: exchangeAddr, http: &http.Client{Timeout: timeout}}
}

// RegisterME announces engineID/engineAddr to the exchange.
func (c *Client) RegisterME(ctx context.Context, engineID, engineAddr, credentials string) (*domain.RegisterMEResponse, error) {
	req := domain.RegisterMERequest{EngineID: engineID, EngineAddr: engineAddr, Credentials: credentials}
	var resp domain.RegisterMEResponse
	if err := c.postJSON(ctx, "/v1/directory/register-me", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Discover returns the currently registered engine addresses.
func (c *Client) Discover(ctx context.Context) (*domain.DiscoverMEResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/v1/directory/discover", nil)
	if err != nil {
		return nil, fmt.Errorf("build discover request: %w", err)
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("discover request failed: %w", err)
	}
	defer httpResp.Body.Close()

	var resp domain.DiscoverMEResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode discover response: %w", err)
	}
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	return json.NewDecoder(httpResp.Body).Decode(out)
}
