// Package orderbook implements the per-symbol price-time priority matching
// core: two sides (bids, asks), each a sorted index of price levels backed
// by a tidwall/btree.BTreeG, with a FIFO (container/list) of resting orders
// at each level.
package orderbook

import (
	"container/list"
	"time"

	"github.com/tidwall/btree"

	"github.com/myniax1024/exchange/internal/activeorder"
	"github.com/myniax1024/exchange/internal/domain"
)

// orderEntry maps a resting order to its linked-list element and level, for
// O(1) cancellation.
type orderEntry struct {
	order   *domain.Order
	element *list.Element
	level   *bookLevel
}

// bookLevel is one price level on one side of the book: a FIFO of resting
// orders in arrival order.
type bookLevel struct {
	Price       int64
	TotalVolume int64
	Orders      *list.List // of *domain.Order
}

// Book is one side (bids or asks) of a symbol's order book.
type Book struct {
	Side   domain.Side
	levels *btree.BTreeG[*bookLevel] // sorted so Min() is always the best price
}

// NewBook creates an empty book side. Bids sort with the highest price
// first; asks sort with the lowest price first — either way, Min() on the
// tree yields the best price for that side.
func NewBook(side domain.Side) *Book {
	var less func(a, b *bookLevel) bool
	if side == domain.SideBuy {
		less = func(a, b *bookLevel) bool { return a.Price > b.Price }
	} else {
		less = func(a, b *bookLevel) bool { return a.Price < b.Price }
	}
	return &Book{Side: side, levels: btree.NewBTreeG(less)}
}

// BestPrice returns the best resting price on this side, and whether one
// exists.
func (b *Book) BestPrice() (int64, bool) {
	lvl, ok := b.levels.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// HasOrders reports whether this side has any resting orders.
func (b *Book) HasOrders() bool {
	return b.levels.Len() > 0
}

// Levels returns aggregated price levels in best-first order, capped at
// depth (0 meaning unlimited).
func (b *Book) Levels(depth int) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, b.levels.Len())
	b.levels.Scan(func(lvl *bookLevel) bool {
		out = append(out, domain.PriceLevel{
			Price:             lvl.Price,
			AggregateQuantity: lvl.TotalVolume,
			OrderCount:        lvl.Orders.Len(),
		})
		return depth <= 0 || len(out) < depth
	})
	if depth > 0 && len(out) > depth {
		out = out[:depth]
	}
	return out
}

func (b *Book) getOrCreateLevel(price int64) *bookLevel {
	probe := &bookLevel{Price: price}
	if lvl, ok := b.levels.Get(probe); ok {
		return lvl
	}
	lvl := &bookLevel{Price: price, Orders: list.New()}
	b.levels.Set(lvl)
	return lvl
}

func (b *Book) addResting(order *domain.Order) *orderEntry {
	level := b.getOrCreateLevel(order.Price)
	level.TotalVolume += order.RemainingQuantity
	elem := level.Orders.PushBack(order)
	return &orderEntry{order: order, element: elem, level: level}
}

func (b *Book) removeEntry(entry *orderEntry) {
	level := entry.level
	level.Orders.Remove(entry.element)
	level.TotalVolume -= entry.order.RemainingQuantity
	if level.Orders.Len() == 0 {
		b.levels.Delete(&bookLevel{Price: level.Price})
	}
}

// OrderBook is the full two-sided book for one symbol.
type OrderBook struct {
	Symbol   string
	BuyBook  *Book
	SellBook *Book
	OrderMap map[string]*orderEntry
}

// NewOrderBook creates an empty book for symbol.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol:   symbol,
		BuyBook:  NewBook(domain.SideBuy),
		SellBook: NewBook(domain.SideSell),
		OrderMap: make(map[string]*orderEntry),
	}
}

func (ob *OrderBook) bookFor(side domain.Side) *Book {
	if side == domain.SideBuy {
		return ob.BuyBook
	}
	return ob.SellBook
}

func (ob *OrderBook) oppositeBookFor(side domain.Side) *Book {
	if side == domain.SideBuy {
		return ob.SellBook
	}
	return ob.BuyBook
}

func crosses(taker *domain.Order, bestPrice int64) bool {
	if taker.Side == domain.SideBuy {
		return taker.Price >= bestPrice
	}
	return taker.Price <= bestPrice
}

// AddOrder matches the incoming order against the opposite side in
// price-time priority and, if quantity remains, rests it on its own side.
// It returns the fills attributed to the incoming order and the fills
// attributed to each resting order it matched against (same length, paired
// index-for-index). Resting orders found at the front of a level but no
// longer present in active are lazily dropped from the book without being
// matched, per the lazy-deletion design.
func (ob *OrderBook) AddOrder(order *domain.Order, active *activeorder.Table) (incoming, resting []*domain.Fill) {
	opposite := ob.oppositeBookFor(order.Side)

	for order.RemainingQuantity > 0 && opposite.HasOrders() {
		bestPrice, _ := opposite.BestPrice()
		if !crosses(order, bestPrice) {
			break
		}

		level := opposite.getOrCreateLevel(bestPrice)
		for order.RemainingQuantity > 0 && level.Orders.Len() > 0 {
			front := level.Orders.Front()
			maker := front.Value.(*domain.Order)

			if !active.IsActive(maker.OrderID) {
				// Lazy deletion: the resting order was cancelled without
				// being eagerly removed from its price level.
				level.Orders.Remove(front)
				delete(ob.OrderMap, maker.OrderID)
				continue
			}

			matchQty := min(order.RemainingQuantity, maker.RemainingQuantity)

			order.RemainingQuantity -= matchQty
			maker.RemainingQuantity -= matchQty
			level.TotalVolume -= matchQty

			if maker.RemainingQuantity == 0 {
				maker.Status = domain.OrderStatusFilled
				level.Orders.Remove(front)
				delete(ob.OrderMap, maker.OrderID)
			} else {
				maker.Status = domain.OrderStatusPartiallyFilled
			}

			if order.RemainingQuantity == 0 {
				order.Status = domain.OrderStatusFilled
			} else {
				order.Status = domain.OrderStatusPartiallyFilled
			}

			fillID := domain.FillID(order.OrderID, maker.OrderID)
			buyer, seller := buyerSeller(order, maker)
			now := time.Now()

			incoming = append(incoming, &domain.Fill{
				FillID:                fillID,
				OrderID:               order.OrderID,
				Symbol:                order.Symbol,
				Side:                  order.Side,
				Price:                 maker.Price,
				Quantity:              matchQty,
				RemainingQuantity:     order.RemainingQuantity,
				Timestamp:             now,
				BuyerID:               buyer,
				SellerID:              seller,
				EngineDestinationAddr: order.EngineOriginAddr,
			})
			resting = append(resting, &domain.Fill{
				FillID:                fillID,
				OrderID:               maker.OrderID,
				Symbol:                maker.Symbol,
				Side:                  maker.Side,
				Price:                 maker.Price,
				Quantity:              matchQty,
				RemainingQuantity:     maker.RemainingQuantity,
				Timestamp:             now,
				BuyerID:               buyer,
				SellerID:              seller,
				EngineDestinationAddr: maker.EngineOriginAddr,
			})
		}

		if level.Orders.Len() == 0 {
			opposite.levels.Delete(&bookLevel{Price: bestPrice})
		}
	}

	if order.RemainingQuantity > 0 {
		if order.Status == "" {
			order.Status = domain.OrderStatusNew
		}
		book := ob.bookFor(order.Side)
		entry := book.addResting(order)
		ob.OrderMap[order.OrderID] = entry
	}

	return incoming, resting
}

// buyerSeller resolves the buyer/seller client ids for a matched pair,
// consistently regardless of which side was the taker.
func buyerSeller(a, b *domain.Order) (buyer, seller string) {
	if a.Side == domain.SideBuy {
		return a.ClientID, b.ClientID
	}
	return b.ClientID, a.ClientID
}

// CancelOrder removes a resting order by id. Returns the cancelled order
// (with Status set to CANCELLED) and its remaining quantity at the time of
// cancellation, or (nil, 0) if the id is not resting in this book.
func (ob *OrderBook) CancelOrder(orderID string) (*domain.Order, int64) {
	entry, ok := ob.OrderMap[orderID]
	if !ok {
		return nil, 0
	}

	book := ob.bookFor(entry.order.Side)
	book.removeEntry(entry)
	delete(ob.OrderMap, orderID)

	entry.order.Status = domain.OrderStatusCancelled
	return entry.order, entry.order.RemainingQuantity
}

// Snapshot returns an L2 snapshot of both sides, best price first, capped
// at depth (0 meaning unlimited).
func (ob *OrderBook) Snapshot(depth int) *domain.OrderBookSnapshot {
	return &domain.OrderBookSnapshot{
		Symbol: ob.Symbol,
		Bids:   ob.BuyBook.Levels(depth),
		Asks:   ob.SellBook.Levels(depth),
	}
}
