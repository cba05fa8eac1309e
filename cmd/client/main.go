// Command client is a small CLI for exercising the exchange and match
// engine surfaces: register a client, submit and cancel orders, and poll
// for fills.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/myniax1024/exchange/internal/domain"
)

type clientConfig struct {
	exchangeAddr string
	meAddr       string
	clientID     string
	auth         string
	timeout      time.Duration
}

func main() {
	cfg := &clientConfig{}

	root := &cobra.Command{
		Use:   "client",
		Short: "Interact with the exchange and a match engine from the command line",
	}
	persistent := root.PersistentFlags()
	persistent.StringVar(&cfg.exchangeAddr, "exchange-addr", "http://127.0.0.1:8080", "base address of the exchange")
	persistent.StringVar(&cfg.clientID, "client-id", "", "this client's id")
	persistent.StringVar(&cfg.auth, "auth", "dev-client-secret", "credential presented at registration")
	persistent.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "request timeout")

	root.AddCommand(registerCmd(cfg), submitCmd(cfg), cancelCmd(cfg), fillsCmd(cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func registerCmd(cfg *clientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register with the exchange and print the assigned match engine address",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.RegisterClientRequest{ClientID: cfg.clientID, Auth: cfg.auth}
			var resp domain.RegisterClientResponse
			if err := postJSON(cfg.timeout, cfg.exchangeAddr+"/v1/exchange/register", &req, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func submitCmd(cfg *clientConfig) *cobra.Command {
	var meAddr, symbol, side string
	var price, quantity int64

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a limit order to a match engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.OrderRequest{
				Symbol:           symbol,
				Side:             domain.Side(side),
				Price:            price,
				Quantity:         quantity,
				ClientID:         cfg.clientID,
				EngineOriginAddr: meAddr,
			}
			var resp domain.SubmitOrderResponse
			if err := postJSON(cfg.timeout, meAddr+"/v1/order", &req, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().StringVar(&meAddr, "me-addr", "", "match engine address to submit to")
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	cmd.Flags().StringVar(&side, "side", "", "BUY or SELL")
	cmd.Flags().Int64Var(&price, "price", 0, "limit price in integer cents")
	cmd.Flags().Int64Var(&quantity, "quantity", 0, "order quantity")
	return cmd
}

func cancelCmd(cfg *clientConfig) *cobra.Command {
	var meAddr, orderID, symbol string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a resting order",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/v1/order/%s?client_id=%s&symbol=%s", meAddr, orderID, cfg.clientID, symbol)
			ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
			defer cancel()

			httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
			if err != nil {
				return err
			}
			httpResp, err := http.DefaultClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer httpResp.Body.Close()

			var resp domain.CancelOrderResponse
			if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().StringVar(&meAddr, "me-addr", "", "match engine address that owns the order")
	cmd.Flags().StringVar(&orderID, "order-id", "", "order id to cancel")
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	return cmd
}

func fillsCmd(cfg *clientConfig) *cobra.Command {
	var meAddr string

	cmd := &cobra.Command{
		Use:   "fills",
		Short: "Drain queued fills from a match engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/v1/fills?client_id=%s", meAddr, cfg.clientID)
			ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
			defer cancel()

			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			httpResp, err := http.DefaultClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer httpResp.Body.Close()

			var resp domain.FillsResponse
			if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().StringVar(&meAddr, "me-addr", "", "match engine address to poll")
	return cmd
}

func postJSON(timeout time.Duration, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	return json.NewDecoder(httpResp.Body).Decode(out)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
