package orderbook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/myniax1024/exchange/internal/activeorder"
	"github.com/myniax1024/exchange/internal/domain"
)

func newOrder(id string, side domain.Side, price, qty int64, client string) *domain.Order {
	return &domain.Order{
		OrderID:           id,
		Symbol:            "ACME",
		Side:              side,
		Price:             price,
		Quantity:          qty,
		RemainingQuantity: qty,
		ClientID:          client,
		Status:            domain.OrderStatusNew,
	}
}

func TestAddOrder_RestsWhenNoCross(t *testing.T) {
	book := NewOrderBook("ACME")
	active := activeorder.New()

	buy := newOrder("b1", domain.SideBuy, 1000, 10, "alice")
	incoming, resting := book.AddOrder(buy, active)

	require.Empty(t, incoming)
	require.Empty(t, resting)
	price, ok := book.BuyBook.BestPrice()
	require.True(t, ok)
	require.Equal(t, int64(1000), price)
}

func TestAddOrder_FullCrossProducesPairedFills(t *testing.T) {
	book := NewOrderBook("ACME")
	active := activeorder.New()

	maker := newOrder("s1", domain.SideSell, 1000, 10, "bob")
	book.AddOrder(maker, active)
	active.Put(maker.OrderID, &activeorder.Entry{RemainingQuantity: maker.RemainingQuantity, OrderRecord: maker})

	taker := newOrder("b1", domain.SideBuy, 1000, 10, "alice")
	incoming, resting := book.AddOrder(taker, active)

	require.Len(t, incoming, 1)
	require.Len(t, resting, 1)
	require.Equal(t, incoming[0].FillID, resting[0].FillID)
	require.Equal(t, domain.FillID("b1", "s1"), incoming[0].FillID)
	require.Equal(t, int64(10), incoming[0].Quantity)
	require.Equal(t, "alice", incoming[0].BuyerID)
	require.Equal(t, "bob", incoming[0].SellerID)
	require.False(t, incoming[0].Timestamp.IsZero())
	require.False(t, resting[0].Timestamp.IsZero())
	require.False(t, book.SellBook.HasOrders())
}

func TestAddOrder_PartialFillLeavesRemainderResting(t *testing.T) {
	book := NewOrderBook("ACME")
	active := activeorder.New()

	maker := newOrder("s1", domain.SideSell, 1000, 5, "bob")
	book.AddOrder(maker, active)
	active.Put(maker.OrderID, &activeorder.Entry{RemainingQuantity: maker.RemainingQuantity, OrderRecord: maker})

	taker := newOrder("b1", domain.SideBuy, 1000, 10, "alice")
	incoming, resting := book.AddOrder(taker, active)

	require.Len(t, incoming, 1)
	require.Equal(t, int64(5), incoming[0].Quantity)
	require.Equal(t, int64(5), taker.RemainingQuantity)
	require.Equal(t, domain.OrderStatusPartiallyFilled, taker.Status)
	require.Equal(t, int64(0), resting[0].RemainingQuantity)

	price, ok := book.BuyBook.BestPrice()
	require.True(t, ok)
	require.Equal(t, int64(1000), price)
}

func TestAddOrder_PriceTimePriority(t *testing.T) {
	book := NewOrderBook("ACME")
	active := activeorder.New()

	first := newOrder("s1", domain.SideSell, 1000, 5, "bob")
	book.AddOrder(first, active)
	active.Put(first.OrderID, &activeorder.Entry{RemainingQuantity: first.RemainingQuantity, OrderRecord: first})

	second := newOrder("s2", domain.SideSell, 1000, 5, "carol")
	book.AddOrder(second, active)
	active.Put(second.OrderID, &activeorder.Entry{RemainingQuantity: second.RemainingQuantity, OrderRecord: second})

	taker := newOrder("b1", domain.SideBuy, 1000, 5, "alice")
	_, resting := book.AddOrder(taker, active)

	require.Len(t, resting, 1)
	require.Equal(t, "s1", resting[0].OrderID)
}

func TestAddOrder_LazilyDropsCancelledRestingOrder(t *testing.T) {
	book := NewOrderBook("ACME")
	active := activeorder.New()

	maker := newOrder("s1", domain.SideSell, 1000, 5, "bob")
	book.AddOrder(maker, active)
	// Never Put into active: simulates a resting order cancelled elsewhere
	// without eager removal from the book.

	taker := newOrder("b1", domain.SideBuy, 1000, 5, "alice")
	incoming, resting := book.AddOrder(taker, active)

	require.Empty(t, incoming)
	require.Empty(t, resting)
	require.False(t, book.SellBook.HasOrders())
	// The taker itself rests since nothing matched it.
	price, ok := book.BuyBook.BestPrice()
	require.True(t, ok)
	require.Equal(t, int64(1000), price)
}

func TestCancelOrder(t *testing.T) {
	book := NewOrderBook("ACME")
	active := activeorder.New()

	order := newOrder("b1", domain.SideBuy, 1000, 10, "alice")
	book.AddOrder(order, active)

	cancelled, qty := book.CancelOrder("b1")
	require.NotNil(t, cancelled)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, int64(10), qty)
	require.False(t, book.BuyBook.HasOrders())

	cancelled, qty = book.CancelOrder("missing")
	require.Nil(t, cancelled)
	require.Equal(t, int64(0), qty)
}

func TestSnapshot_RespectsDepth(t *testing.T) {
	book := NewOrderBook("ACME")
	active := activeorder.New()

	book.AddOrder(newOrder("b1", domain.SideBuy, 1000, 1, "a"), active)
	book.AddOrder(newOrder("b2", domain.SideBuy, 999, 1, "a"), active)
	book.AddOrder(newOrder("b3", domain.SideBuy, 998, 1, "a"), active)

	snap := book.Snapshot(2)
	require.Len(t, snap.Bids, 2)
	require.Equal(t, int64(1000), snap.Bids[0].Price)
	require.Equal(t, int64(999), snap.Bids[1].Price)
}
