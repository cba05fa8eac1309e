package cancel

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/myniax1024/exchange/internal/activeorder"
	"github.com/myniax1024/exchange/internal/domain"
)

type fakeBook struct {
	cancelled map[string]int64
}

func (b *fakeBook) CancelOrder(orderID string) (*domain.Order, int64) {
	qty, ok := b.cancelled[orderID]
	if !ok {
		return nil, 0
	}
	return &domain.Order{OrderID: orderID, Status: domain.OrderStatusCancelled}, qty
}

type fakeRemote struct {
	called  bool
	addr    string
	ok      bool
	qty     int64
	err     error
}

func (r *fakeRemote) ForwardCancel(ctx context.Context, addr string, order *domain.Order) (bool, int64, error) {
	r.called = true
	r.addr = addr
	return r.ok, r.qty, r.err
}

func TestCancel_UnknownOrderIsNoOp(t *testing.T) {
	active := activeorder.New()
	coord := New("me1", active, func(string) LocalBook { return &fakeBook{} }, &fakeRemote{}, zerolog.Nop())

	ok, qty, err := coord.Cancel(context.Background(), &domain.Order{OrderID: "ghost"})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(0), qty)
}

func TestCancel_ResolvesLocallyWhenOwnedHere(t *testing.T) {
	active := activeorder.New()
	active.Put("o1", &activeorder.Entry{RemainingQuantity: 7, OwningEngineAddr: "me1"})
	book := &fakeBook{cancelled: map[string]int64{"o1": 7}}
	remote := &fakeRemote{}
	coord := New("me1", active, func(string) LocalBook { return book }, remote, zerolog.Nop())

	ok, qty, err := coord.Cancel(context.Background(), &domain.Order{OrderID: "o1", Symbol: "ACME"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), qty)
	require.False(t, remote.called)
	require.False(t, active.IsActive("o1"))
}

func TestCancel_ForwardsWhenOwnedRemotely(t *testing.T) {
	active := activeorder.New()
	active.Put("o1", &activeorder.Entry{RemainingQuantity: 5, OwningEngineAddr: "me2"})
	remote := &fakeRemote{ok: true, qty: 5}
	coord := New("me1", active, func(string) LocalBook { return &fakeBook{} }, remote, zerolog.Nop())

	ok, qty, err := coord.Cancel(context.Background(), &domain.Order{OrderID: "o1", Symbol: "ACME"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5), qty)
	require.True(t, remote.called)
	require.Equal(t, "me2", remote.addr)
}

func TestCancel_SecondCancelOfSameOrderIsNoOp(t *testing.T) {
	active := activeorder.New()
	active.Put("o1", &activeorder.Entry{RemainingQuantity: 7, OwningEngineAddr: "me1"})
	book := &fakeBook{cancelled: map[string]int64{"o1": 7}}
	remote := &fakeRemote{}
	coord := New("me1", active, func(string) LocalBook { return book }, remote, zerolog.Nop())

	ok, qty, err := coord.Cancel(context.Background(), &domain.Order{OrderID: "o1", Symbol: "ACME"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), qty)

	// o1 is gone from the active table now; cancelling it again must be a
	// clean no-op rather than re-cancelling the book or forwarding anywhere.
	ok, qty, err = coord.Cancel(context.Background(), &domain.Order{OrderID: "o1", Symbol: "ACME"})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(0), qty)
	require.False(t, remote.called)
}

func TestResolveLocal_NeverForwards(t *testing.T) {
	active := activeorder.New()
	active.Put("o1", &activeorder.Entry{RemainingQuantity: 3, OwningEngineAddr: "me2"})
	book := &fakeBook{cancelled: map[string]int64{"o1": 3}}
	remote := &fakeRemote{}
	coord := New("me1", active, func(string) LocalBook { return book }, remote, zerolog.Nop())

	ok, qty := coord.ResolveLocal(&domain.Order{OrderID: "o1", Symbol: "ACME"})
	require.True(t, ok)
	require.Equal(t, int64(3), qty)
	require.False(t, remote.called)
}
