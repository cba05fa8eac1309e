// Package ordermanager implements the ME-local client wallet/settlement
// layer: it withholds cash or shares when an order is accepted, settles
// them as fills arrive, and releases the withheld amount on cancel. This
// makes the spec's per-fill conservation property (§8) checkable: for a
// fill of quantity q at price, the buyer's balance decreases by q*price
// and holdings increase by q; the seller is symmetric.
package ordermanager

import (
	"fmt"
	"sync"

	"github.com/myniax1024/exchange/internal/domain"
)

type withheldShare struct {
	Symbol   string
	Quantity int64
}

// Wallet tracks one client's cash balance and symbol holdings.
type Wallet struct {
	CashBalance    int64
	Holdings       map[string]int64
	WithheldCash   map[string]int64       // orderID -> withheld cents
	WithheldShares map[string]withheldShare // orderID -> withheld shares
}

func newWallet(cash int64, holdings map[string]int64) *Wallet {
	h := make(map[string]int64, len(holdings))
	for k, v := range holdings {
		h[k] = v
	}
	return &Wallet{
		CashBalance:    cash,
		Holdings:       h,
		WithheldCash:   make(map[string]int64),
		WithheldShares: make(map[string]withheldShare),
	}
}

// Manager is the ME-local wallet/settlement layer. Like
// internal/activeorder.Table, it is intended to be owned by the
// match-engine actor: Withhold/Settle/Release are called synchronously
// from the actor's own goroutine. Because GetWallet/GetAllWallets (read
// lock) and InitWallet are reachable from HTTP handler goroutines, every
// mutating method, those three included, takes the write lock.
type Manager struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// New creates an empty wallet manager.
func New() *Manager {
	return &Manager{wallets: make(map[string]*Wallet)}
}

// InitWallet creates or replaces a client's wallet.
func (m *Manager) InitWallet(clientID string, cashBalance int64, holdings map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[clientID] = newWallet(cashBalance, holdings)
}

// GetWallet returns a defensive copy of a client's wallet, or nil if none.
func (m *Manager) GetWallet(clientID string) *Wallet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[clientID]
	if !ok {
		return nil
	}
	holdings := make(map[string]int64, len(w.Holdings))
	for k, v := range w.Holdings {
		holdings[k] = v
	}
	return &Wallet{CashBalance: w.CashBalance, Holdings: holdings}
}

// GetAllWallets returns a defensive copy of every wallet, keyed by client id.
func (m *Manager) GetAllWallets() map[string]*Wallet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Wallet, len(m.wallets))
	for id, w := range m.wallets {
		holdings := make(map[string]int64, len(w.Holdings))
		for k, v := range w.Holdings {
			holdings[k] = v
		}
		out[id] = &Wallet{CashBalance: w.CashBalance, Holdings: holdings}
	}
	return out
}

// Withhold reserves funds (BUY) or shares (SELL) for a newly accepted
// order, failing the order if the client has no wallet or insufficient
// available balance. Available balance already excludes amounts withheld
// by the client's other open orders.
func (m *Manager) Withhold(order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.wallets[order.ClientID]
	if !ok {
		return fmt.Errorf("client %s has no wallet", order.ClientID)
	}

	if order.Side == domain.SideBuy {
		cost := order.Price * order.Quantity
		available := wallet.CashBalance - totalWithheldCash(wallet)
		if available < cost {
			return fmt.Errorf("insufficient funds: need %d, available %d", cost, available)
		}
		wallet.WithheldCash[order.OrderID] = cost
		return nil
	}

	available := wallet.Holdings[order.Symbol] - totalWithheldShares(wallet, order.Symbol)
	if available < order.Quantity {
		return fmt.Errorf("insufficient shares of %s: need %d, available %d", order.Symbol, order.Quantity, available)
	}
	wallet.WithheldShares[order.OrderID] = withheldShare{Symbol: order.Symbol, Quantity: order.Quantity}
	return nil
}

// Release returns any amount still withheld for orderID (on cancel, or
// once an order is fully filled) to the client's available balance.
func (m *Manager) Release(clientID, orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[clientID]
	if !ok {
		return
	}
	delete(wallet.WithheldCash, orderID)
	delete(wallet.WithheldShares, orderID)
}

// Settle applies one trade's cash/share movement to both sides exactly
// once. A single match produces two domain.Fill records, one for the
// incoming order and one for the resting order, both describing the same
// trade; callers must pass only one of the two here. fill.OrderID
// identifies whichever side of the trade that fill belongs to (the buyer's
// order if fill.Side is BUY, the seller's otherwise); counterpartOrderID
// is the other side's order id, needed to release its own withheld amount.
func (m *Manager) Settle(fill *domain.Fill, counterpartOrderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cost := fill.Price * fill.Quantity

	buyerOrderID, sellerOrderID := counterpartOrderID, fill.OrderID
	if fill.Side == domain.SideBuy {
		buyerOrderID, sellerOrderID = fill.OrderID, counterpartOrderID
	}

	if buyer, ok := m.wallets[fill.BuyerID]; ok {
		buyer.CashBalance -= cost
		buyer.Holdings[fill.Symbol] += fill.Quantity
		if withheld, ok := buyer.WithheldCash[buyerOrderID]; ok {
			if withheld -= cost; withheld <= 0 {
				delete(buyer.WithheldCash, buyerOrderID)
			} else {
				buyer.WithheldCash[buyerOrderID] = withheld
			}
		}
	}
	if seller, ok := m.wallets[fill.SellerID]; ok {
		seller.CashBalance += cost
		seller.Holdings[fill.Symbol] -= fill.Quantity
		if ws, ok := seller.WithheldShares[sellerOrderID]; ok {
			if ws.Quantity -= fill.Quantity; ws.Quantity <= 0 {
				delete(seller.WithheldShares, sellerOrderID)
			} else {
				seller.WithheldShares[sellerOrderID] = ws
			}
		}
	}
}

func totalWithheldCash(w *Wallet) int64 {
	var total int64
	for _, v := range w.WithheldCash {
		total += v
	}
	return total
}

func totalWithheldShares(w *Wallet, symbol string) int64 {
	var total int64
	for _, ws := range w.WithheldShares {
		if ws.Symbol == symbol {
			total += ws.Quantity
		}
	}
	return total
}
