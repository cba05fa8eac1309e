// Package fillqueue implements the per-client fill queue: fills land here
// as they are produced and are drained by the client-facing GetFills poll.
// This is the pull-until-empty design chosen over literal server-streaming
// because the RPC surface is HTTP/JSON (see SPEC_FULL.md §6).
package fillqueue

import (
	"sync"

	"github.com/myniax1024/exchange/internal/domain"
)

// Queue is a per-client FIFO of undelivered fills, safe for concurrent use:
// it is written to from the match-engine actor goroutine (local fills) and
// the PutFill HTTP handler (fills routed in from peers), and drained from
// HTTP handler goroutines at the same time.
type Queue struct {
	mu    sync.Mutex
	byClient map[string][]*domain.Fill
}

// New creates an empty fill queue.
func New() *Queue {
	return &Queue{byClient: make(map[string][]*domain.Fill)}
}

// Enqueue appends fill to clientID's queue. Implements matchengine.FillSink.
func (q *Queue) Enqueue(clientID string, fill *domain.Fill) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byClient[clientID] = append(q.byClient[clientID], fill)
}

// Drain returns and clears everything queued for clientID — a single
// GetFills call empties the queue, per the pull-until-empty contract.
func (q *Queue) Drain(clientID string) []*domain.Fill {
	q.mu.Lock()
	defer q.mu.Unlock()
	fills := q.byClient[clientID]
	delete(q.byClient, clientID)
	return fills
}
