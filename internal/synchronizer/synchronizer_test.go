package synchronizer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/myniax1024/exchange/internal/domain"
)

type fakeLocalBook struct {
	prices map[domain.Side]int64
	ok     map[domain.Side]bool
}

func (f *fakeLocalBook) LocalBestPrice(symbol string, side domain.Side) (int64, bool) {
	return f.prices[side], f.ok[side]
}

func TestLookupBBOEngine_NoInterestAnywhereStaysLocal(t *testing.T) {
	local := &fakeLocalBook{ok: map[domain.Side]bool{}}
	sy := New("me1", local, time.Second, zerolog.Nop())

	order := &domain.Order{Symbol: "ACME", Side: domain.SideBuy, Price: 1000}
	addr, err := sy.LookupBBOEngine(context.Background(), order)
	require.NoError(t, err)
	require.Equal(t, "me1", addr)
}

func TestLookupBBOEngine_LocalInterestCrossesLimit(t *testing.T) {
	local := &fakeLocalBook{
		prices: map[domain.Side]int64{domain.SideSell: 900},
		ok:     map[domain.Side]bool{domain.SideSell: true},
	}
	sy := New("me1", local, time.Second, zerolog.Nop())

	order := &domain.Order{Symbol: "ACME", Side: domain.SideBuy, Price: 1000}
	addr, err := sy.LookupBBOEngine(context.Background(), order)
	require.NoError(t, err)
	require.Equal(t, "me1", addr)
}

func TestLookupBBOEngine_NoCrossStaysLocalEvenWithInterest(t *testing.T) {
	local := &fakeLocalBook{
		prices: map[domain.Side]int64{domain.SideSell: 1200},
		ok:     map[domain.Side]bool{domain.SideSell: true},
	}
	sy := New("me1", local, time.Second, zerolog.Nop())

	order := &domain.Order{Symbol: "ACME", Side: domain.SideBuy, Price: 1000}
	addr, err := sy.LookupBBOEngine(context.Background(), order)
	require.NoError(t, err)
	require.Equal(t, "me1", addr)
}

func TestBetterPrice(t *testing.T) {
	require.True(t, betterPrice(domain.SideBuy, 900, 1000))
	require.False(t, betterPrice(domain.SideBuy, 1000, 900))
	require.True(t, betterPrice(domain.SideSell, 1100, 1000))
	require.False(t, betterPrice(domain.SideSell, 1000, 1100))
}

func TestCrossesLimit(t *testing.T) {
	require.True(t, crossesLimit(domain.SideBuy, 900, 1000))
	require.False(t, crossesLimit(domain.SideBuy, 1100, 1000))
	require.True(t, crossesLimit(domain.SideSell, 1100, 1000))
	require.False(t, crossesLimit(domain.SideSell, 900, 1000))
}

func TestApplyUpdate_DropsStaleOrOutOfOrder(t *testing.T) {
	sy := New("me1", &fakeLocalBook{}, time.Second, zerolog.Nop())

	accepted := sy.ApplyUpdate(&domain.BroadcastOrderbookRequest{Symbol: "ACME", OriginEngineID: "me2", SequenceNumber: 5})
	require.True(t, accepted)

	stale := sy.ApplyUpdate(&domain.BroadcastOrderbookRequest{Symbol: "ACME", OriginEngineID: "me2", SequenceNumber: 5})
	require.False(t, stale)

	older := sy.ApplyUpdate(&domain.BroadcastOrderbookRequest{Symbol: "ACME", OriginEngineID: "me2", SequenceNumber: 3})
	require.False(t, older)

	newer := sy.ApplyUpdate(&domain.BroadcastOrderbookRequest{Symbol: "ACME", OriginEngineID: "me2", SequenceNumber: 6})
	require.True(t, newer)
}

func TestApplyUpdate_SequencingIsPerOrigin(t *testing.T) {
	sy := New("me1", &fakeLocalBook{}, time.Second, zerolog.Nop())

	require.True(t, sy.ApplyUpdate(&domain.BroadcastOrderbookRequest{Symbol: "ACME", OriginEngineID: "me2", SequenceNumber: 10}))
	// A different origin engine's sequence counter is independent, so a
	// lower number from a different origin must still be accepted.
	require.True(t, sy.ApplyUpdate(&domain.BroadcastOrderbookRequest{Symbol: "ACME", OriginEngineID: "me3", SequenceNumber: 1}))
}

func TestRouteOrder_UnknownPeerErrors(t *testing.T) {
	sy := New("me1", &fakeLocalBook{}, time.Second, zerolog.Nop())
	err := sy.RouteOrder(context.Background(), &domain.Order{}, "http://unknown")
	require.Error(t, err)
}

func TestForwardCancel_UnknownPeerErrors(t *testing.T) {
	sy := New("me1", &fakeLocalBook{}, time.Second, zerolog.Nop())
	_, _, err := sy.ForwardCancel(context.Background(), "http://unknown", &domain.Order{})
	require.Error(t, err)
}

func TestAddPeer_IgnoresSelf(t *testing.T) {
	sy := New("me1", &fakeLocalBook{}, time.Second, zerolog.Nop())
	sy.AddPeer("me1")
	require.Empty(t, sy.peerList())
}
