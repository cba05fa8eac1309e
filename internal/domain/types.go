// Package domain holds the wire-level and book-level types shared by every
// subsystem of a matching engine or exchange directory process.
package domain

import "time"

// Side represents the order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// Order is a limit order. Prices are fixed-point integer cents, e.g. 10010
// means $100.10 — the original spec permits either IEEE-754 doubles or
// fixed-point cents for a two-decimal monetary price; this port takes the
// fixed-point option.
type Order struct {
	OrderID           string      `json:"order_id"`
	Symbol            string      `json:"symbol"`
	Side              Side        `json:"side"`
	Price             int64       `json:"price"`
	Quantity          int64       `json:"quantity"`
	RemainingQuantity int64       `json:"remaining_quantity"`
	Status            OrderStatus `json:"status"`
	ClientID          string      `json:"client_id"`
	// EngineOriginAddr is the ME address where the submitting client is
	// registered and expects its fills to be delivered.
	EngineOriginAddr string    `json:"engine_origin_addr"`
	Timestamp        time.Time `json:"timestamp"`
}

// FilledQuantity derives the filled portion from Quantity/RemainingQuantity.
func (o *Order) FilledQuantity() int64 {
	return o.Quantity - o.RemainingQuantity
}

// Fill records one side of a match. Two Fills are produced per match: one
// attributed to the incoming (taker) order, one to the resting (maker)
// order. The fill id format is part of the wire contract.
type Fill struct {
	FillID                string    `json:"fill_id"`
	OrderID               string    `json:"order_id"`
	Symbol                string    `json:"symbol"`
	Side                  Side      `json:"side"`
	Price                 int64     `json:"price"`
	Quantity              int64     `json:"quantity"`
	RemainingQuantity     int64     `json:"remaining_quantity"`
	Timestamp             time.Time `json:"timestamp"`
	BuyerID               string    `json:"buyer_id"`
	SellerID              string    `json:"seller_id"`
	EngineDestinationAddr string    `json:"engine_destination_addr"`
}

// FillID builds the canonical id for the fills of one match between an
// incoming and a resting order; both fills of the match share it.
func FillID(incomingOrderID, restingOrderID string) string {
	return "FILL;incoming:" + incomingOrderID + ";resting:" + restingOrderID
}

// PriceLevel is one aggregated price level of an L2 order book snapshot.
type PriceLevel struct {
	Price             int64 `json:"price"`
	AggregateQuantity int64 `json:"aggregate_quantity"`
	OrderCount        int   `json:"order_count"`
}

// OrderBookSnapshot is an L2 snapshot of one symbol's book.
type OrderBookSnapshot struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// Candlestick is OHLCV data for one time interval, used by the market-data
// component supplemented from the teacher repo.
type Candlestick struct {
	Symbol    string    `json:"symbol"`
	Open      int64     `json:"open"`
	High      int64     `json:"high"`
	Low       int64     `json:"low"`
	Close     int64     `json:"close"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	Interval  string    `json:"interval"`
}

// Execution is an internal trade record used by the market-data subsystem;
// it is derived from a matched pair of Fills.
type Execution struct {
	ExecID       string    `json:"exec_id"`
	Symbol       string    `json:"symbol"`
	Price        int64     `json:"price"`
	Quantity     int64     `json:"quantity"`
	MakerOrderID string    `json:"maker_order_id"`
	TakerOrderID string    `json:"taker_order_id"`
	BuyerID      string    `json:"buyer_id"`
	SellerID     string    `json:"seller_id"`
	Timestamp    time.Time `json:"timestamp"`
}
