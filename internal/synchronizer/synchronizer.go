// Package synchronizer implements cross-engine BBO discovery, order
// routing, fill routing, and the advisory order-book broadcast.
package synchronizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/myniax1024/exchange/internal/domain"
	"github.com/myniax1024/exchange/internal/telemetry"
)

// LocalBookReader exposes the local engine's own best price for a side,
// without an RPC hop. Implemented by *matchengine.Engine.
type LocalBookReader interface {
	LocalBestPrice(symbol string, side domain.Side) (price int64, ok bool)
}

type publishKey struct {
	Symbol string
	Origin string
}

// Synchronizer is the cross-engine coordination subsystem for one ME.
type Synchronizer struct {
	selfAddr string
	local    LocalBookReader
	timeout  time.Duration
	log      zerolog.Logger

	mu    sync.Mutex // guards peers + the publish/accept sequence maps, both reachable from HTTP handler goroutines
	peers map[string]*PeerClient

	outboundSeq  map[string]uint64    // symbol -> next sequence number this engine will publish
	lastAccepted map[publishKey]uint64 // (symbol, origin) -> last accepted inbound sequence number
	cache        map[string]*domain.OrderBookSnapshot
}

// New creates a Synchronizer for the engine at selfAddr.
func New(selfAddr string, local LocalBookReader, timeout time.Duration, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		selfAddr:     selfAddr,
		local:        local,
		timeout:      timeout,
		log:          log,
		peers:        make(map[string]*PeerClient),
		outboundSeq:  make(map[string]uint64),
		lastAccepted: make(map[publishKey]uint64),
		cache:        make(map[string]*domain.OrderBookSnapshot),
	}
}

// SetLocal wires the local book reader after construction, for the common
// bootstrap ordering where the engine itself depends on the synchronizer
// and so cannot be supplied to New before it exists.
func (s *Synchronizer) SetLocal(local LocalBookReader) {
	s.local = local
}

// AddPeer registers a peer ME address, building its HTTP client once. Called
// during discovery; the client is reused for the engine's lifetime.
func (s *Synchronizer) AddPeer(addr string) {
	if addr == s.selfAddr {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.peers[addr]; !exists {
		s.peers[addr] = NewPeerClient(addr, s.timeout)
	}
}

func (s *Synchronizer) peerList() map[string]*PeerClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*PeerClient, len(s.peers))
	for addr, c := range s.peers {
		out[addr] = c
	}
	return out
}

func oppositeSide(side domain.Side) domain.Side {
	if side == domain.SideBuy {
		return domain.SideSell
	}
	return domain.SideBuy
}

// betterPrice reports whether candidate improves on current for the given
// incoming order side: lower asks are better for a BUY, higher bids are
// better for a SELL.
func betterPrice(side domain.Side, candidate, current int64) bool {
	if side == domain.SideBuy {
		return candidate < current
	}
	return candidate > current
}

func crossesLimit(side domain.Side, price, limit int64) bool {
	if side == domain.SideBuy {
		return price <= limit
	}
	return price >= limit
}

// LookupBBOEngine returns the address of the engine currently advertising
// the best contra-side price for order, or the local engine's own address
// if no engine (local or remote) has interest that crosses the order's
// limit. On equal best price, the local engine is preferred — this avoids
// needless routing. Peer timeouts are logged and treated as "no interest",
// falling back toward the local engine.
func (s *Synchronizer) LookupBBOEngine(ctx context.Context, order *domain.Order) (string, error) {
	bestAddr := s.selfAddr

	var best *int64
	if price, ok := s.local.LocalBestPrice(order.Symbol, oppositeSide(order.Side)); ok {
		p := price
		best = &p
	}

	for addr, peer := range s.peerList() {
		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp, err := peer.GetOrderBook(reqCtx, order.Symbol)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Str("peer", addr).Msg("BBO probe failed, falling back to local")
			continue
		}

		var levels []domain.PriceLevel
		if order.Side == domain.SideBuy {
			levels = resp.Asks
		} else {
			levels = resp.Bids
		}
		if len(levels) == 0 {
			continue
		}

		peerBest := levels[0].Price
		if best == nil || betterPrice(order.Side, peerBest, *best) {
			p := peerBest
			best = &p
			bestAddr = addr
		}
	}

	if best == nil || !crossesLimit(order.Side, *best, order.Price) {
		return s.selfAddr, nil
	}
	return bestAddr, nil
}

// RouteOrder sends order to the engine at addr for matching as if it had
// been submitted there directly.
func (s *Synchronizer) RouteOrder(ctx context.Context, order *domain.Order, addr string) error {
	peer, ok := s.peer(addr)
	if !ok {
		return errUnknownPeer(addr)
	}
	req := toOrderRequest(order)
	resp, err := peer.SubmitOrder(ctx, &req)
	if err != nil {
		return err
	}
	if resp.Status == domain.StatusError {
		return fmt.Errorf("remote engine rejected routed order: %s", resp.ErrorMessage)
	}
	return nil
}

// RouteFill delivers fill to the engine hosting the recipient client.
func (s *Synchronizer) RouteFill(ctx context.Context, fill *domain.Fill, destAddr string) error {
	peer, ok := s.peer(destAddr)
	if !ok {
		return errUnknownPeer(destAddr)
	}

	clientID := fill.SellerID
	if fill.Side == domain.SideBuy {
		clientID = fill.BuyerID
	}

	req := &domain.PutFillRequest{ClientID: clientID, Fill: *fill}
	resp, err := peer.PutFill(ctx, req)
	if err != nil {
		return err
	}
	if resp.Status != domain.StatusAccepted {
		return fmt.Errorf("peer rejected routed fill: %s", resp.Status)
	}
	return nil
}

// ForwardCancel implements cancel.RemoteCanceller: forwards a cancel to the
// engine at addr and propagates its result verbatim.
func (s *Synchronizer) ForwardCancel(ctx context.Context, addr string, order *domain.Order) (bool, int64, error) {
	peer, ok := s.peer(addr)
	if !ok {
		return false, 0, errUnknownPeer(addr)
	}
	reqOrder := toOrderRequest(order)
	req := &domain.CancelOrderRequest{OrderID: order.OrderID, ClientID: order.ClientID, OrderRecord: reqOrder}
	resp, err := peer.CancelOrder(ctx, req)
	if err != nil {
		return false, 0, err
	}
	return resp.Status == domain.StatusSuccessful, resp.QuantityCancelled, nil
}

// PublishUpdate broadcasts a best-effort, sequence-numbered snapshot of the
// local book to every known peer. This is advisory only: LookupBBOEngine
// never consults the cache this populates on the receiving side: it always
// performs an authoritative RPC probe.
func (s *Synchronizer) PublishUpdate(ctx context.Context, symbol string, bids, asks []domain.PriceLevel) {
	s.mu.Lock()
	s.outboundSeq[symbol]++
	seq := s.outboundSeq[symbol]
	peers := make(map[string]*PeerClient, len(s.peers))
	for addr, c := range s.peers {
		peers[addr] = c
	}
	s.mu.Unlock()

	req := &domain.BroadcastOrderbookRequest{
		Symbol:         symbol,
		Bids:           bids,
		Asks:           asks,
		SequenceNumber: seq,
		OriginEngineID: s.selfAddr,
	}

	for addr, peer := range peers {
		go func(addr string, peer *PeerClient) {
			reqCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := peer.BroadcastOrderbook(reqCtx, req); err != nil {
				s.log.Debug().Err(err).Str("peer", addr).Msg("advisory orderbook broadcast failed")
			}
		}(addr, peer)
	}
}

// ApplyUpdate applies an inbound advisory broadcast from a peer, enforcing
// per-(symbol, origin) drop-if-older sequencing. Returns whether the update
// was accepted (true) or dropped as stale/out-of-order (false).
func (s *Synchronizer) ApplyUpdate(req *domain.BroadcastOrderbookRequest) bool {
	key := publishKey{Symbol: req.Symbol, Origin: req.OriginEngineID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.SequenceNumber <= s.lastAccepted[key] {
		s.log.Debug().Str("symbol", req.Symbol).Str("origin", req.OriginEngineID).
			Uint64("seq", req.SequenceNumber).Msg("dropping stale advisory orderbook update")
		telemetry.AdvisoryUpdatesDroppedTotal.WithLabelValues(req.Symbol).Inc()
		return false
	}

	s.lastAccepted[key] = req.SequenceNumber
	s.cache[req.Symbol] = &domain.OrderBookSnapshot{Symbol: req.Symbol, Bids: req.Bids, Asks: req.Asks}
	return true
}

func (s *Synchronizer) peer(addr string) (*PeerClient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[addr]
	return p, ok
}

func errUnknownPeer(addr string) error {
	return fmt.Errorf("synchronizer: no peer registered for address %q", addr)
}

func toOrderRequest(o *domain.Order) domain.OrderRequest {
	return domain.OrderRequest{
		OrderID:           o.OrderID,
		Symbol:            o.Symbol,
		Side:              o.Side,
		Price:             o.Price,
		Quantity:          o.Quantity,
		RemainingQuantity: o.RemainingQuantity,
		ClientID:          o.ClientID,
		EngineOriginAddr:  o.EngineOriginAddr,
		TimestampNs:       o.Timestamp.UnixNano(),
	}
}
