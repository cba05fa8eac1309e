// Package activeorder implements the per-ME active-order table: the
// authoritative map from order id to the engine currently holding it and
// its remaining quantity. It is shared, by design, between the order book
// (which reads it during matching to drop cancelled resting orders),
// UpdateAfterFills (which deletes entries on full fill) and the
// cancellation coordinator (which deletes entries on cancel).
//
// Table is not safe for concurrent use. It is owned exclusively by one
// match-engine actor goroutine (see internal/matchengine); that single
// owner is what the original system achieved with a per-ME lock.
package activeorder

import (
	"github.com/rs/zerolog"

	"github.com/myniax1024/exchange/internal/domain"
)

// Entry is the table's authoritative record for one live order.
type Entry struct {
	RemainingQuantity int64
	OwningEngineAddr  string
	OrderRecord       *domain.Order
}

// Table is the active-order table.
type Table struct {
	entries map[string]*Entry
}

// New creates an empty active-order table.
func New() *Table {
	return &Table{entries: make(map[string]*Entry)}
}

// Put creates or overwrites the entry for orderID.
func (t *Table) Put(orderID string, e *Entry) {
	t.entries[orderID] = e
}

// Get returns the entry for orderID, if any.
func (t *Table) Get(orderID string) (*Entry, bool) {
	e, ok := t.entries[orderID]
	return e, ok
}

// IsActive reports whether orderID still has a live entry. The order book
// uses this during matching to lazily drop resting orders that were
// cancelled without being eagerly removed from their price level.
func (t *Table) IsActive(orderID string) bool {
	_, ok := t.entries[orderID]
	return ok
}

// Delete removes orderID's entry, if present.
func (t *Table) Delete(orderID string) {
	delete(t.entries, orderID)
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// UpdateAfterFills applies a batch of fills to the table: each fill's
// post-trade RemainingQuantity becomes the entry's new RemainingQuantity,
// and the entry is deleted once remaining reaches zero. A fill referring to
// an id no longer in the table (already resolved or cancelled) is logged
// and otherwise ignored.
func (t *Table) UpdateAfterFills(fills []*domain.Fill, log zerolog.Logger) {
	for _, f := range fills {
		entry, ok := t.entries[f.OrderID]
		if !ok {
			log.Warn().Str("order_id", f.OrderID).Msg("fill refers to an order no longer in the active-order table")
			continue
		}
		entry.RemainingQuantity = f.RemainingQuantity
		if entry.RemainingQuantity <= 0 {
			delete(t.entries, f.OrderID)
		}
	}
}
