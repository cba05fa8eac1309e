package activeorder

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/myniax1024/exchange/internal/domain"
)

func TestPutGetDelete(t *testing.T) {
	table := New()
	table.Put("o1", &Entry{RemainingQuantity: 10, OwningEngineAddr: "me1"})

	entry, ok := table.Get("o1")
	require.True(t, ok)
	require.Equal(t, int64(10), entry.RemainingQuantity)
	require.True(t, table.IsActive("o1"))
	require.Equal(t, 1, table.Len())

	table.Delete("o1")
	require.False(t, table.IsActive("o1"))
	require.Equal(t, 0, table.Len())
}

func TestUpdateAfterFillsDeletesOnZeroRemaining(t *testing.T) {
	table := New()
	table.Put("o1", &Entry{RemainingQuantity: 10})

	table.UpdateAfterFills([]*domain.Fill{
		{OrderID: "o1", RemainingQuantity: 4},
	}, zerolog.Nop())

	entry, ok := table.Get("o1")
	require.True(t, ok)
	require.Equal(t, int64(4), entry.RemainingQuantity)

	table.UpdateAfterFills([]*domain.Fill{
		{OrderID: "o1", RemainingQuantity: 0},
	}, zerolog.Nop())

	require.False(t, table.IsActive("o1"))
}

func TestUpdateAfterFillsIgnoresUnknownOrder(t *testing.T) {
	table := New()
	require.NotPanics(t, func() {
		table.UpdateAfterFills([]*domain.Fill{{OrderID: "ghost", RemainingQuantity: 0}}, zerolog.Nop())
	})
	require.Equal(t, 0, table.Len())
}
