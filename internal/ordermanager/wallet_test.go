package ordermanager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/myniax1024/exchange/internal/domain"
)

func TestWithhold_BuyReservesCash(t *testing.T) {
	m := New()
	m.InitWallet("alice", 10000, nil)

	order := &domain.Order{OrderID: "o1", ClientID: "alice", Symbol: "ACME", Side: domain.SideBuy, Price: 100, Quantity: 50}
	require.NoError(t, m.Withhold(order))

	order2 := &domain.Order{OrderID: "o2", ClientID: "alice", Symbol: "ACME", Side: domain.SideBuy, Price: 100, Quantity: 60}
	err := m.Withhold(order2)
	require.Error(t, err)
}

func TestWithhold_SellReservesShares(t *testing.T) {
	m := New()
	m.InitWallet("bob", 0, map[string]int64{"ACME": 10})

	order := &domain.Order{OrderID: "o1", ClientID: "bob", Symbol: "ACME", Side: domain.SideSell, Price: 100, Quantity: 10}
	require.NoError(t, m.Withhold(order))

	order2 := &domain.Order{OrderID: "o2", ClientID: "bob", Symbol: "ACME", Side: domain.SideSell, Price: 100, Quantity: 1}
	require.Error(t, m.Withhold(order2))
}

func TestWithhold_UnknownClientFails(t *testing.T) {
	m := New()
	err := m.Withhold(&domain.Order{OrderID: "o1", ClientID: "ghost", Side: domain.SideBuy, Price: 1, Quantity: 1})
	require.Error(t, err)
}

func TestRelease_FreesWithheldAmount(t *testing.T) {
	m := New()
	m.InitWallet("alice", 1000, nil)
	order := &domain.Order{OrderID: "o1", ClientID: "alice", Symbol: "ACME", Side: domain.SideBuy, Price: 100, Quantity: 10}
	require.NoError(t, m.Withhold(order))

	m.Release("alice", "o1")

	order2 := &domain.Order{OrderID: "o2", ClientID: "alice", Symbol: "ACME", Side: domain.SideBuy, Price: 100, Quantity: 10}
	require.NoError(t, m.Withhold(order2))
}

func TestSettle_ConservesValueAcrossBuyerAndSeller(t *testing.T) {
	m := New()
	m.InitWallet("alice", 10000, nil)
	m.InitWallet("bob", 0, map[string]int64{"ACME": 10})

	buy := &domain.Order{OrderID: "b1", ClientID: "alice", Symbol: "ACME", Side: domain.SideBuy, Price: 100, Quantity: 10}
	sell := &domain.Order{OrderID: "s1", ClientID: "bob", Symbol: "ACME", Side: domain.SideSell, Price: 100, Quantity: 10}
	require.NoError(t, m.Withhold(buy))
	require.NoError(t, m.Withhold(sell))

	// One match produces two Fill records (incoming + resting) describing
	// the same trade; Settle is called once, on the incoming fill, with the
	// resting order's id passed along to release its own withheld amount.
	m.Settle(&domain.Fill{OrderID: "b1", Symbol: "ACME", Side: domain.SideBuy, Price: 100, Quantity: 10, BuyerID: "alice", SellerID: "bob"}, "s1")

	aliceWallet := m.GetWallet("alice")
	bobWallet := m.GetWallet("bob")
	require.Equal(t, int64(9000), aliceWallet.CashBalance)
	require.Equal(t, int64(10), aliceWallet.Holdings["ACME"])
	require.Equal(t, int64(1000), bobWallet.CashBalance)
	require.Equal(t, int64(0), bobWallet.Holdings["ACME"])
}

func TestSettle_PartialFillLeavesRemainderWithheld(t *testing.T) {
	m := New()
	m.InitWallet("alice", 10000, nil)
	buy := &domain.Order{OrderID: "b1", ClientID: "alice", Symbol: "ACME", Side: domain.SideBuy, Price: 100, Quantity: 10}
	require.NoError(t, m.Withhold(buy))

	m.Settle(&domain.Fill{OrderID: "b1", Symbol: "ACME", Side: domain.SideBuy, Price: 100, Quantity: 4, BuyerID: "alice", SellerID: "bob"}, "s1")

	// A second order from alice for the remaining withheld headroom must
	// still fail: 600 cents remain withheld for b1 out of 1000 reserved.
	order2 := &domain.Order{OrderID: "o2", ClientID: "alice", Symbol: "ACME", Side: domain.SideBuy, Price: 100, Quantity: 94}
	require.Error(t, m.Withhold(order2))
}
