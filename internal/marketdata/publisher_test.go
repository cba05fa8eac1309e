package marketdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/myniax1024/exchange/internal/domain"
)

func TestApply_BuildsRunningCandleAndExecutionLog(t *testing.T) {
	p := New(16, zerolog.Nop())

	p.apply(&domain.Execution{ExecID: "e1", Symbol: "ACME", Price: 100, Quantity: 5, Timestamp: time.Now()})
	p.apply(&domain.Execution{ExecID: "e2", Symbol: "ACME", Price: 110, Quantity: 3, Timestamp: time.Now()})
	p.apply(&domain.Execution{ExecID: "e3", Symbol: "ACME", Price: 90, Quantity: 2, Timestamp: time.Now()})

	candles := p.GetCandles("ACME", 10)
	require.Len(t, candles, 1)
	c := candles[0]
	require.Equal(t, int64(100), c.Open)
	require.Equal(t, int64(110), c.High)
	require.Equal(t, int64(90), c.Low)
	require.Equal(t, int64(90), c.Close)
	require.Equal(t, int64(10), c.Volume)

	execs := p.GetExecutions("ACME", "", time.Time{})
	require.Len(t, execs, 3)
}

func TestRotate_MovesCurrentCandleToRingBuffer(t *testing.T) {
	p := New(16, zerolog.Nop())
	p.apply(&domain.Execution{Symbol: "ACME", Price: 100, Quantity: 1, Timestamp: time.Now()})

	p.rotate()

	candles := p.GetCandles("ACME", 10)
	require.Len(t, candles, 1)

	// No data arrived since the rotate, so the in-progress candle should
	// not duplicate the rotated one.
	require.False(t, p.states["ACME"].hasData)
}

func TestGetExecutions_FiltersBySymbolAndOrderID(t *testing.T) {
	p := New(16, zerolog.Nop())
	p.apply(&domain.Execution{Symbol: "ACME", MakerOrderID: "m1", TakerOrderID: "t1", Price: 1, Quantity: 1, Timestamp: time.Now()})
	p.apply(&domain.Execution{Symbol: "OTHER", MakerOrderID: "m2", TakerOrderID: "t2", Price: 1, Quantity: 1, Timestamp: time.Now()})

	acme := p.GetExecutions("ACME", "", time.Time{})
	require.Len(t, acme, 1)

	byOrder := p.GetExecutions("", "m2", time.Time{})
	require.Len(t, byOrder, 1)
	require.Equal(t, "OTHER", byOrder[0].Symbol)
}

func TestRecord_DropsWhenChannelFull(t *testing.T) {
	p := New(1, zerolog.Nop())
	p.Record(&domain.Execution{Symbol: "ACME"})
	require.NotPanics(t, func() {
		p.Record(&domain.Execution{Symbol: "ACME"})
	})
	require.Len(t, p.execIn, 1)
}
