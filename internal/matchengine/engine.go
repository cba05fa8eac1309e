// Package matchengine wires the order book, active-order table,
// cancellation coordinator, and synchronizer into a single match-engine
// actor: one goroutine owns all mutable matching state and drains a
// buffered channel of commands, discharging the original per-ME lock
// without any explicit mutex (see SPEC_FULL.md §9, Open Question c).
package matchengine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/myniax1024/exchange/internal/activeorder"
	"github.com/myniax1024/exchange/internal/cancel"
	"github.com/myniax1024/exchange/internal/domain"
	"github.com/myniax1024/exchange/internal/orderbook"
	"github.com/myniax1024/exchange/internal/telemetry"
)

// FillSink receives every fill produced for a client hosted on this engine,
// for the client-facing pull-until-empty GetFills surface.
type FillSink interface {
	Enqueue(clientID string, fill *domain.Fill)
}

// Settler is the ME-local wallet/settlement layer (internal/ordermanager):
// it withholds cash or shares when an order is accepted, settles them as
// fills arrive, and releases the withheld amount on cancel.
type Settler interface {
	Withhold(order *domain.Order) error
	Settle(fill *domain.Fill, counterpartOrderID string)
	Release(clientID, orderID string)
}

// ExecutionSink receives one Execution per match for the market-data
// candle/execution-log stream (internal/marketdata).
type ExecutionSink interface {
	Record(exec *domain.Execution)
}

// RemoteRouter is the narrow synchronizer surface the engine needs. Kept as
// an interface so this package never imports internal/synchronizer
// directly, and so tests can stub cross-engine behaviour.
type RemoteRouter interface {
	LookupBBOEngine(ctx context.Context, order *domain.Order) (string, error)
	RouteOrder(ctx context.Context, order *domain.Order, addr string) error
	RouteFill(ctx context.Context, fill *domain.Fill, destAddr string) error
	PublishUpdate(ctx context.Context, symbol string, bids, asks []domain.PriceLevel)
	ForwardCancel(ctx context.Context, addr string, order *domain.Order) (ok bool, cancelledQty int64, err error)
}

const routeFillTimeout = 5 * time.Second

// command is the sum type of work items the actor goroutine drains from its
// input channel. Each carries a reply channel so the submitting goroutine
// (an HTTP handler, typically) can block for the result without touching
// engine state itself.
type command struct {
	kind     commandKind
	order    *domain.Order
	symbol   string
	depth    int
	reply    chan result
}

type commandKind int

const (
	cmdSubmitOrder commandKind = iota
	cmdRouteOrderIn             // an order routed in from a peer ME: matched locally, never re-routed
	cmdCancelOrder
	cmdResolveLocalCancel // a cancel forwarded in from a peer: resolved locally, never re-forwarded
	cmdSnapshot
)

type result struct {
	order     *domain.Order
	cancelled bool
	qty       int64
	snapshot  *domain.OrderBookSnapshot
	err       error
}

// Engine is the match-engine actor for one process. SelfAddr identifies it
// to peers for single-hop routing decisions.
type Engine struct {
	selfAddr string
	log      zerolog.Logger

	books    map[string]*orderbook.OrderBook
	active   *activeorder.Table
	coord    *cancel.Coordinator
	router   RemoteRouter
	fills    FillSink
	wallet   Settler
	execs    ExecutionSink

	snapshotDepth int

	cmds chan command
	done chan struct{}
}

// New creates an Engine. router and fills may be nil only in single-engine
// tests that never cross-route; a production engine always supplies both.
// wallet and execs may be nil when settlement/market-data are not needed
// (e.g. unit tests exercising matching alone).
func New(selfAddr string, router RemoteRouter, fills FillSink, snapshotDepth int, log zerolog.Logger) *Engine {
	e := &Engine{
		selfAddr:      selfAddr,
		log:           log,
		books:         make(map[string]*orderbook.OrderBook),
		active:        activeorder.New(),
		router:        router,
		fills:         fills,
		snapshotDepth: snapshotDepth,
		cmds:          make(chan command, 1024),
		done:          make(chan struct{}),
	}
	e.coord = cancel.New(selfAddr, e.active, e.bookLookup, &coordinatorRouter{e}, log)
	return e
}

// SetSettler wires the wallet/settlement layer. Must be called before Run,
// from the same goroutine that constructed the Engine.
func (e *Engine) SetSettler(s Settler) { e.wallet = s }

// SetExecutionSink wires the market-data execution stream. Must be called
// before Run, from the same goroutine that constructed the Engine.
func (e *Engine) SetExecutionSink(s ExecutionSink) { e.execs = s }

// coordinatorRouter adapts Engine.router (reached only once a remote forward
// is actually needed) to cancel.RemoteCanceller.
type coordinatorRouter struct{ e *Engine }

func (c *coordinatorRouter) ForwardCancel(ctx context.Context, addr string, order *domain.Order) (bool, int64, error) {
	return c.e.router.ForwardCancel(ctx, addr, order)
}

func (e *Engine) bookLookup(symbol string) cancel.LocalBook {
	return e.getOrCreateBook(symbol)
}

func (e *Engine) getOrCreateBook(symbol string) *orderbook.OrderBook {
	book, ok := e.books[symbol]
	if !ok {
		book = orderbook.NewOrderBook(symbol)
		e.books[symbol] = book
	}
	return book
}

// Run drains commands until Stop is called. Intended to run in its own
// goroutine for the life of the process — this goroutine is the sole
// mutator of books, active, and the fill routing performed from it.
func (e *Engine) Run() {
	for {
		select {
		case cmd := <-e.cmds:
			e.dispatch(cmd)
		case <-e.done:
			return
		}
	}
}

// Stop halts the actor loop. Safe to call once.
func (e *Engine) Stop() { close(e.done) }

func (e *Engine) dispatch(cmd command) {
	switch cmd.kind {
	case cmdSubmitOrder:
		e.handleSubmit(cmd)
	case cmdRouteOrderIn:
		e.handleRoutedIn(cmd)
	case cmdCancelOrder:
		e.handleCancel(cmd)
	case cmdResolveLocalCancel:
		e.handleResolveLocalCancel(cmd)
	case cmdSnapshot:
		e.handleSnapshot(cmd)
	}
}

// SelfAddr returns the address this engine identifies itself with to peers.
func (e *Engine) SelfAddr() string { return e.selfAddr }

// LocalBestPrice implements synchronizer.LocalBookReader: read-only access
// to this engine's own book state, called synchronously from the actor's
// own goroutine during SubmitOrder (LookupBBOEngine happens before the
// book is touched, so no reentrancy hazard exists).
func (e *Engine) LocalBestPrice(symbol string, side domain.Side) (int64, bool) {
	book, ok := e.books[symbol]
	if !ok {
		return 0, false
	}
	if side == domain.SideBuy {
		return book.BuyBook.BestPrice()
	}
	return book.SellBook.BestPrice()
}

// SubmitOrder is the client-facing entry point: submit ctx, order through
// the actor and block for the terminal result. The order's
// EngineOriginAddr must already be set to the submitting engine's address.
func (e *Engine) SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	reply := make(chan result, 1)
	select {
	case e.cmds <- command{kind: cmdSubmitOrder, order: order, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.order, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RouteOrderIn handles an order a peer engine routed to this one because
// this engine held the better contra-side price. It is matched against the
// local book only — the receiving engine never re-probes BBO or re-routes,
// satisfying the single-hop invariant.
func (e *Engine) RouteOrderIn(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	reply := make(chan result, 1)
	select {
	case e.cmds <- command{kind: cmdRouteOrderIn, order: order, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.order, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CancelOrder resolves a cancel for order, forwarding to the owning engine
// at most once via the cancellation coordinator.
func (e *Engine) CancelOrder(ctx context.Context, order *domain.Order) (bool, int64, error) {
	reply := make(chan result, 1)
	select {
	case e.cmds <- command{kind: cmdCancelOrder, order: order, reply: reply}:
	case <-ctx.Done():
		return false, 0, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.cancelled, r.qty, r.err
	case <-ctx.Done():
		return false, 0, ctx.Err()
	}
}

// ResolveLocalCancel handles a cancel forwarded in from a peer: it must
// resolve against this engine's own book only, never forwarding again.
func (e *Engine) ResolveLocalCancel(ctx context.Context, order *domain.Order) (bool, int64, error) {
	reply := make(chan result, 1)
	select {
	case e.cmds <- command{kind: cmdResolveLocalCancel, order: order, reply: reply}:
	case <-ctx.Done():
		return false, 0, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.cancelled, r.qty, r.err
	case <-ctx.Done():
		return false, 0, ctx.Err()
	}
}

// Snapshot returns the current L2 snapshot for symbol.
func (e *Engine) Snapshot(ctx context.Context, symbol string) (*domain.OrderBookSnapshot, error) {
	reply := make(chan result, 1)
	select {
	case e.cmds <- command{kind: cmdSnapshot, symbol: symbol, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.snapshot, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) handleSubmit(cmd command) {
	order := cmd.order
	ctx := context.Background()
	telemetry.OrdersTotal.WithLabelValues(order.Symbol, order.EngineOriginAddr).Inc()

	if e.wallet != nil {
		if err := e.wallet.Withhold(order); err != nil {
			cmd.reply <- result{err: fmt.Errorf("risk check failed: %w", err)}
			return
		}
	}

	if e.router != nil {
		addr, err := e.router.LookupBBOEngine(ctx, order)
		if err != nil {
			e.log.Warn().Err(err).Str("order_id", order.OrderID).Msg("BBO lookup failed, matching locally")
			addr = e.selfAddr
		}
		if addr != e.selfAddr {
			// Keep an entry for the routed order, marked as living on addr,
			// so a cancel arriving here is forwarded to that engine.
			e.active.Put(order.OrderID, &activeorder.Entry{
				RemainingQuantity: order.RemainingQuantity,
				OwningEngineAddr:  addr,
				OrderRecord:       order,
			})
			if err := e.router.RouteOrder(ctx, order, addr); err != nil {
				cmd.reply <- result{err: fmt.Errorf("routing order to %s: %w", addr, err)}
				return
			}
			telemetry.RoutedOrdersTotal.WithLabelValues(addr).Inc()
			order.Status = domain.OrderStatusNew
			order.EngineOriginAddr = e.selfAddr
			cmd.reply <- result{order: order}
			return
		}
	}

	e.match(order)
	cmd.reply <- result{order: order}
}

func (e *Engine) handleRoutedIn(cmd command) {
	e.match(cmd.order)
	cmd.reply <- result{order: cmd.order}
}

// match runs an order through the local book, updates the active-order
// table, routes resulting fills home, and publishes an advisory book
// update. Only ever called from the actor's own goroutine.
func (e *Engine) match(order *domain.Order) {
	book := e.getOrCreateBook(order.Symbol)
	incoming, resting := book.AddOrder(order, e.active)

	if order.RemainingQuantity > 0 {
		e.active.Put(order.OrderID, &activeorder.Entry{
			RemainingQuantity: order.RemainingQuantity,
			OwningEngineAddr:  e.selfAddr,
			OrderRecord:       order,
		})
	}

	all := append(append([]*domain.Fill{}, incoming...), resting...)
	e.active.UpdateAfterFills(all, e.log)
	telemetry.ActiveOrderTableSize.Set(float64(e.active.Len()))
	if len(all) > 0 {
		telemetry.FillsTotal.WithLabelValues(order.Symbol).Add(float64(len(all)))
	}

	if e.wallet != nil {
		// incoming[i] and resting[i] describe the same trade: settling both
		// would double-apply the cash/holdings movement, so each match is
		// settled exactly once, keyed off the incoming fill, with the
		// resting order's id passed along to release its own withheld
		// amount correctly.
		for i := range incoming {
			e.wallet.Settle(incoming[i], resting[i].OrderID)
		}
	}
	if e.execs != nil {
		for i := range incoming {
			e.execs.Record(&domain.Execution{
				ExecID:       incoming[i].FillID,
				Symbol:       incoming[i].Symbol,
				Price:        incoming[i].Price,
				Quantity:     incoming[i].Quantity,
				MakerOrderID: resting[i].OrderID,
				TakerOrderID: incoming[i].OrderID,
				BuyerID:      incoming[i].BuyerID,
				SellerID:     incoming[i].SellerID,
				Timestamp:    incoming[i].Timestamp,
			})
		}
	}

	e.routeFills(incoming)
	e.routeFills(resting)

	snap := book.Snapshot(e.snapshotDepth)
	telemetry.OrderBookDepth.WithLabelValues(order.Symbol, "bid").Set(float64(len(snap.Bids)))
	telemetry.OrderBookDepth.WithLabelValues(order.Symbol, "ask").Set(float64(len(snap.Asks)))

	if e.router != nil {
		e.router.PublishUpdate(context.Background(), order.Symbol, snap.Bids, snap.Asks)
	}
}

// routeFills delivers each fill to the engine hosting its recipient
// client. Fills destined for this engine are enqueued directly; fills
// destined elsewhere fire a best-effort RouteFill RPC in its own goroutine
// so the actor's turn is never blocked on a cross-engine hop.
func (e *Engine) routeFills(fills []*domain.Fill) {
	for _, f := range fills {
		if f.EngineDestinationAddr == "" || f.EngineDestinationAddr == e.selfAddr {
			if e.fills != nil {
				recipient := f.SellerID
				if f.Side == domain.SideBuy {
					recipient = f.BuyerID
				}
				e.fills.Enqueue(recipient, f)
			}
			continue
		}
		if e.router == nil {
			continue
		}
		fill := f
		dest := f.EngineDestinationAddr
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), routeFillTimeout)
			defer cancel()
			if err := e.router.RouteFill(ctx, fill, dest); err != nil {
				e.log.Warn().Err(err).Str("fill_id", fill.FillID).Str("dest", dest).Msg("failed to route fill home")
			}
		}()
	}
}

func (e *Engine) handleCancel(cmd command) {
	ok, qty, err := e.coord.Cancel(context.Background(), cmd.order)
	telemetry.ActiveOrderTableSize.Set(float64(e.active.Len()))
	telemetry.CancelsTotal.WithLabelValues(cancelOutcome(ok, err)).Inc()
	if ok && e.wallet != nil {
		e.wallet.Release(cmd.order.ClientID, cmd.order.OrderID)
	}
	cmd.reply <- result{cancelled: ok, qty: qty, err: err}
}

func (e *Engine) handleResolveLocalCancel(cmd command) {
	ok, qty := e.coord.ResolveLocal(cmd.order)
	telemetry.ActiveOrderTableSize.Set(float64(e.active.Len()))
	telemetry.CancelsTotal.WithLabelValues(cancelOutcome(ok, nil)).Inc()
	if ok && e.wallet != nil {
		e.wallet.Release(cmd.order.ClientID, cmd.order.OrderID)
	}
	cmd.reply <- result{cancelled: ok, qty: qty}
}

func cancelOutcome(ok bool, err error) string {
	if err != nil {
		return "error"
	}
	if ok {
		return "cancelled"
	}
	return "not_found"
}

func (e *Engine) handleSnapshot(cmd command) {
	book, ok := e.books[cmd.symbol]
	if !ok {
		cmd.reply <- result{snapshot: &domain.OrderBookSnapshot{Symbol: cmd.symbol}}
		return
	}
	cmd.reply <- result{snapshot: book.Snapshot(e.snapshotDepth)}
}
