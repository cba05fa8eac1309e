// Package cancel implements the cancellation coordinator: it resolves a
// cancel request against the active-order table and either performs the
// cancel locally (against the owning book) or forwards it, exactly once,
// to the remote engine that holds the order.
package cancel

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/myniax1024/exchange/internal/activeorder"
	"github.com/myniax1024/exchange/internal/domain"
	"github.com/myniax1024/exchange/internal/telemetry"
)

// LocalBook is the narrow view of a symbol's order book the coordinator
// needs. Implemented by *orderbook.OrderBook; kept as an interface so this
// package never imports orderbook, avoiding a cyclic dependency back
// through the match engine.
type LocalBook interface {
	CancelOrder(orderID string) (order *domain.Order, cancelledQty int64)
}

// BookLookup resolves the book for a symbol, auto-creating it if absent —
// mirrors the behaviour already required of submit_order.
type BookLookup func(symbol string) LocalBook

// RemoteCanceller forwards a CancelOrder RPC to a peer ME. Implemented by
// internal/synchronizer.Synchronizer.
type RemoteCanceller interface {
	ForwardCancel(ctx context.Context, addr string, order *domain.Order) (ok bool, cancelledQty int64, err error)
}

// Coordinator is the cancellation coordinator for one ME.
type Coordinator struct {
	selfAddr string
	active   *activeorder.Table
	books    BookLookup
	remote   RemoteCanceller
	log      zerolog.Logger
}

// New creates a Coordinator. selfAddr is this engine's own address, used to
// decide whether a cancel resolves locally or must be forwarded.
func New(selfAddr string, active *activeorder.Table, books BookLookup, remote RemoteCanceller, log zerolog.Logger) *Coordinator {
	return &Coordinator{selfAddr: selfAddr, active: active, books: books, remote: remote, log: log}
}

// Cancel resolves order against the active-order table. If the id is
// unknown, returns (false, 0, nil) with no side effects. If it is owned by
// a remote engine, forwards the cancel once, carrying the order record held
// in the table when there is one, and returns the remote result verbatim —
// the coordinator never re-forwards a cancel it receives as a forwarded
// request (see ResolveLocal).
func (c *Coordinator) Cancel(ctx context.Context, order *domain.Order) (ok bool, cancelledQty int64, err error) {
	entry, found := c.active.Get(order.OrderID)
	if !found {
		c.log.Warn().Str("order_id", order.OrderID).Msg("cancel for unknown order id")
		return false, 0, nil
	}

	if entry.OwningEngineAddr != c.selfAddr {
		c.log.Info().Str("order_id", order.OrderID).Str("owner", entry.OwningEngineAddr).Msg("forwarding cancel to owning engine")
		telemetry.ForwardedCancelsTotal.WithLabelValues(entry.OwningEngineAddr).Inc()
		record := order
		if entry.OrderRecord != nil {
			record = entry.OrderRecord
		}
		return c.remote.ForwardCancel(ctx, entry.OwningEngineAddr, record)
	}

	return c.resolveLocal(order)
}

// ResolveLocal cancels order against this engine's own book, assuming the
// caller already knows the order lives here — used both by Cancel above
// and by the transport handler for a cancel forwarded in from a peer,
// which must resolve locally only and never re-forward (single-hop
// forwarding invariant).
func (c *Coordinator) ResolveLocal(order *domain.Order) (ok bool, cancelledQty int64) {
	ok, cancelledQty, _ = c.resolveLocal(order)
	return ok, cancelledQty
}

func (c *Coordinator) resolveLocal(order *domain.Order) (bool, int64, error) {
	book := c.books(order.Symbol)
	cancelled, qty := book.CancelOrder(order.OrderID)
	if cancelled == nil {
		c.log.Warn().Str("order_id", order.OrderID).Msg("active table had the order but the book did not")
		c.active.Delete(order.OrderID)
		return false, 0, nil
	}

	c.active.Delete(order.OrderID)
	return true, qty, nil
}
