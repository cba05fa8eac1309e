// Package marketdata maintains the candlestick series and execution log
// derived from the match engine's fill stream, independent of the
// authoritative order-book state the actor holds directly.
package marketdata

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/myniax1024/exchange/internal/domain"
)

const (
	ringBufferCapacity = 100
	defaultInterval    = "1m"
	candleInterval     = time.Minute
)

type candleState struct {
	current *domain.Candlestick
	hasData bool
}

// ringBuffer is a fixed-size circular buffer of completed candles.
type ringBuffer struct {
	data  [ringBufferCapacity]*domain.Candlestick
	head  int
	count int
}

func (rb *ringBuffer) push(c *domain.Candlestick) {
	rb.data[rb.head] = c
	rb.head = (rb.head + 1) % ringBufferCapacity
	if rb.count < ringBufferCapacity {
		rb.count++
	}
}

func (rb *ringBuffer) recent(n int) []*domain.Candlestick {
	if n <= 0 || rb.count == 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}
	out := make([]*domain.Candlestick, n)
	start := (rb.head - n + ringBufferCapacity) % ringBufferCapacity
	for i := 0; i < n; i++ {
		out[i] = rb.data[(start+i)%ringBufferCapacity]
	}
	return out
}

// Publisher derives candlesticks and an execution log from executions handed
// to it by the match engine. Safe for concurrent use: fed from the actor's
// goroutine, read from HTTP handler goroutines.
type Publisher struct {
	mu sync.RWMutex

	candles map[string]*ringBuffer
	states  map[string]*candleState

	executions []*domain.Execution

	execIn chan *domain.Execution
	done   chan struct{}
	log    zerolog.Logger
}

// New creates a Publisher. bufferSize bounds the execution channel so a
// burst of matches never blocks the actor that feeds it.
func New(bufferSize int, log zerolog.Logger) *Publisher {
	return &Publisher{
		candles: make(map[string]*ringBuffer),
		states:  make(map[string]*candleState),
		execIn:  make(chan *domain.Execution, bufferSize),
		done:    make(chan struct{}),
		log:     log,
	}
}

// Record enqueues exec for candle/execution-log processing. Non-blocking:
// if the channel is full, the execution is dropped and logged, matching
// the teacher's own market-data fan-out behaviour under backpressure.
func (p *Publisher) Record(exec *domain.Execution) {
	select {
	case p.execIn <- exec:
	default:
		p.log.Warn().Str("exec_id", exec.ExecID).Msg("marketdata execution channel full, dropping")
	}
}

// Run processes executions and rotates candles on a 1-minute tick until
// Stop is called. Intended to run in its own goroutine.
func (p *Publisher) Run() {
	ticker := time.NewTicker(candleInterval)
	defer ticker.Stop()
	for {
		select {
		case exec := <-p.execIn:
			p.apply(exec)
		case <-ticker.C:
			p.rotate()
		case <-p.done:
			return
		}
	}
}

// Stop halts Run. Safe to call once.
func (p *Publisher) Stop() { close(p.done) }

func (p *Publisher) apply(exec *domain.Execution) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executions = append(p.executions, exec)
	p.updateCandle(exec)
}

func (p *Publisher) updateCandle(exec *domain.Execution) {
	state, ok := p.states[exec.Symbol]
	if !ok {
		state = &candleState{}
		p.states[exec.Symbol] = state
	}

	if !state.hasData {
		state.current = &domain.Candlestick{
			Symbol:    exec.Symbol,
			Open:      exec.Price,
			High:      exec.Price,
			Low:       exec.Price,
			Close:     exec.Price,
			Volume:    exec.Quantity,
			Timestamp: exec.Timestamp.Truncate(candleInterval),
			Interval:  defaultInterval,
		}
		state.hasData = true
		return
	}

	c := state.current
	if exec.Price > c.High {
		c.High = exec.Price
	}
	if exec.Price < c.Low {
		c.Low = exec.Price
	}
	c.Close = exec.Price
	c.Volume += exec.Quantity
}

func (p *Publisher) rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for symbol, state := range p.states {
		if !state.hasData {
			continue
		}
		rb, ok := p.candles[symbol]
		if !ok {
			rb = &ringBuffer{}
			p.candles[symbol] = rb
		}
		rb.push(state.current)
		state.hasData = false
		state.current = nil
	}
}

// GetCandles returns up to count recent candles for symbol, including the
// currently-building one if it has data.
func (p *Publisher) GetCandles(symbol string, count int) []*domain.Candlestick {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if count <= 0 {
		return nil
	}
	state, ok := p.states[symbol]
	building := ok && state.hasData
	completed := count
	if building {
		completed--
	}

	var out []*domain.Candlestick
	if rb, ok := p.candles[symbol]; ok {
		out = rb.recent(completed)
	}
	if building {
		out = append(out, state.current)
	}
	return out
}

// GetExecutions returns logged executions matching the given filters; a
// zero value for a filter means "don't filter on this field".
func (p *Publisher) GetExecutions(symbol, orderID string, since time.Time) []*domain.Execution {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*domain.Execution
	for _, exec := range p.executions {
		if symbol != "" && exec.Symbol != symbol {
			continue
		}
		if orderID != "" && exec.MakerOrderID != orderID && exec.TakerOrderID != orderID {
			continue
		}
		if !since.IsZero() && exec.Timestamp.Before(since) {
			continue
		}
		out = append(out, exec)
	}
	return out
}
