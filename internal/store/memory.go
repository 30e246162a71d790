package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"stealthpay/internal/model"
)

// Memory is an in-memory Store with the same upsert semantics as the GORM
// adapter. It backs tests and local development without a database.
type Memory struct {
	mu          sync.Mutex
	payments    map[string]*model.Payment
	withdrawals map[[2]string]*model.Withdrawal
	users       []model.User
	links       []model.Link
	seq         int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		payments:    make(map[string]*model.Payment),
		withdrawals: make(map[[2]string]*model.Withdrawal),
	}
}

// AddUser seeds a directory entry.
func (m *Memory) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
}

// AddLink seeds a payment channel.
func (m *Memory) AddLink(l model.Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, l)
}

// Payment returns a copy of the stored payment, or nil.
func (m *Memory) Payment(txHash string) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[txHash]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Withdrawal returns a copy of the stored withdrawal, or nil.
func (m *Memory) Withdrawal(txHash, stealthOwner string) *model.Withdrawal {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[[2]string{txHash, stealthOwner}]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

// PaymentCount reports how many payment records exist.
func (m *Memory) PaymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *Memory) UpsertPayment(_ context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.payments[p.TxHash]; exists {
		return nil
	}
	cp := *p
	m.seq++
	cp.CreatedAt = time.Now().Add(time.Duration(m.seq)) // stable insertion order
	m.payments[p.TxHash] = &cp
	return nil
}

func (m *Memory) UpsertWithdrawal(_ context.Context, w *model.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{w.TxHash, w.StealthOwner}
	if _, exists := m.withdrawals[key]; exists {
		return nil
	}
	cp := *w
	cp.CreatedAt = time.Now()
	m.withdrawals[key] = &cp
	return nil
}

func (m *Memory) FindUnprocessedPayments(_ context.Context, limit int) ([]model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Payment
	for _, p := range m.payments {
		if !p.IsProcessed {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) FindUsersWithKeyMaterial(_ context.Context, walletChain string) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.users {
		if u.WalletChain == walletChain && u.MetaViewPriv != "" && u.MetaSpendPub != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Memory) FindLinkByOwnerAndTag(_ context.Context, ownerID, tag string) (*model.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.UserID == ownerID && l.Tag == tag {
			cp := l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindLinkByID(_ context.Context, id string) (*model.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.ID == id {
			cp := l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) MarkPaymentProcessed(_ context.Context, txHash, linkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[txHash]; ok {
		p.IsProcessed = true
		if linkID != "" {
			p.LinkID = linkID
		}
	}
	return nil
}

func (m *Memory) MarkWithdrawalProcessed(_ context.Context, txHash, stealthOwner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.withdrawals[[2]string{txHash, stealthOwner}]; ok {
		w.IsProcessed = true
	}
	return nil
}

func (m *Memory) LatestCursor(_ context.Context, chain string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best string
	var bestSlot uint64
	found := false
	for _, p := range m.payments {
		if p.Chain == chain && (!found || p.Slot >= bestSlot) {
			best, bestSlot, found = p.TxHash, p.Slot, true
		}
	}
	for _, w := range m.withdrawals {
		if w.Chain == chain && (!found || w.Slot > bestSlot) {
			best, bestSlot, found = w.TxHash, w.Slot, true
		}
	}
	return best, nil
}

var _ Store = (*Memory)(nil)
var _ Store = (*DB)(nil)
