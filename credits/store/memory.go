// Package store provides credits store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atmgo/backoffice/credits"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is an in-memory credits.TxStore. Safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	accounts  map[int64]credits.Account
	transfers []credits.TransferRecord
	nextID    int64
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[int64]credits.Account),
		nextID:   1,
	}
}

func (m *Memory) GetAccount(_ context.Context, id int64) (*credits.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(id), nil
}

func (m *Memory) getAccountLocked(id int64) *credits.Account {
	if a, ok := m.accounts[id]; ok {
		cp := a
		return &cp
	}
	return nil
}

func (m *Memory) FindActiveByIdentifier(_ context.Context, identifier string) (*credits.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findActiveLocked(identifier), nil
}

// findActiveLocked checks merchant code, then email, then phone. Within a
// field, the lowest account ID wins. Identifiers are expected to be unique
// in practice; the tie-break keeps lookups deterministic when they are not.
func (m *Memory) findActiveLocked(identifier string) *credits.Account {
	match := func(field func(credits.Account) string) *credits.Account {
		var best *credits.Account
		for _, a := range m.accounts {
			if a.Status != credits.StatusActive || field(a) != identifier {
				continue
			}
			if best == nil || a.ID < best.ID {
				cp := a
				best = &cp
			}
		}
		return best
	}

	if a := match(func(a credits.Account) string { return a.MerchantCode }); a != nil {
		return a
	}
	if a := match(func(a credits.Account) string { return a.Email }); a != nil {
		return a
	}
	return match(func(a credits.Account) string { return a.Phone })
}

func (m *Memory) SaveAccount(_ context.Context, a credits.Account) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAccountLocked(a), nil
}

func (m *Memory) saveAccountLocked(a credits.Account) int64 {
	if a.ID == 0 {
		a.ID = m.nextID
		m.nextID++
	} else if a.ID >= m.nextID {
		m.nextID = a.ID + 1
	}
	m.accounts[a.ID] = a
	return a.ID
}

func (m *Memory) ListAccounts(_ context.Context) ([]credits.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]credits.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AddToBalance(_ context.Context, id int64, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addToBalanceLocked(id, delta)
}

func (m *Memory) addToBalanceLocked(id int64, delta decimal.Decimal) error {
	a, ok := m.accounts[id]
	if !ok {
		return credits.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(delta)
	m.accounts[id] = a
	return nil
}

func (m *Memory) AppendTransfer(_ context.Context, rec credits.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendTransferLocked(rec)
	return nil
}

func (m *Memory) appendTransferLocked(rec credits.TransferRecord) {
	m.transfers = append(m.transfers, rec)
}

func (m *Memory) History(_ context.Context, accountID int64, limit int) ([]credits.TransferRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.historyLocked(accountID, limit), nil
}

func (m *Memory) historyLocked(accountID int64, limit int) []credits.TransferRecord {
	// Walk newest-appended first so equal CreatedAt ties resolve to the most
	// recent insertion, same as the durable store.
	var out []credits.TransferRecord
	for i := len(m.transfers) - 1; i >= 0; i-- {
		rec := m.transfers[i]
		if rec.SenderID == accountID || rec.RecipientID == accountID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// =============================================================================
// TRANSACTIONS - Snapshot/restore, mirroring rollback semantics
// =============================================================================

// WithTx runs fn against a view of the store holding the write lock for the
// whole closure. If fn fails, the pre-transaction state is restored.
func (m *Memory) WithTx(_ context.Context, fn func(credits.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txMemoryView{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts  map[int64]credits.Account
	transfers []credits.TransferRecord
	nextID    int64
}

func (m *Memory) snapshot() memorySnapshot {
	accounts := make(map[int64]credits.Account, len(m.accounts))
	for id, a := range m.accounts {
		accounts[id] = a
	}
	transfers := make([]credits.TransferRecord, len(m.transfers))
	copy(transfers, m.transfers)
	return memorySnapshot{accounts: accounts, transfers: transfers, nextID: m.nextID}
}

func (m *Memory) restore(s memorySnapshot) {
	m.accounts = s.accounts
	m.transfers = s.transfers
	m.nextID = s.nextID
}

// txMemoryView routes Store calls to the locked internals of the parent.
type txMemoryView struct {
	m *Memory
}

func (tv *txMemoryView) GetAccount(_ context.Context, id int64) (*credits.Account, error) {
	return tv.m.getAccountLocked(id), nil
}

func (tv *txMemoryView) FindActiveByIdentifier(_ context.Context, identifier string) (*credits.Account, error) {
	return tv.m.findActiveLocked(identifier), nil
}

func (tv *txMemoryView) SaveAccount(_ context.Context, a credits.Account) (int64, error) {
	return tv.m.saveAccountLocked(a), nil
}

func (tv *txMemoryView) ListAccounts(ctx context.Context) ([]credits.Account, error) {
	out := make([]credits.Account, 0, len(tv.m.accounts))
	for _, a := range tv.m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tv *txMemoryView) AddToBalance(_ context.Context, id int64, delta decimal.Decimal) error {
	return tv.m.addToBalanceLocked(id, delta)
}

func (tv *txMemoryView) AppendTransfer(_ context.Context, rec credits.TransferRecord) error {
	tv.m.appendTransferLocked(rec)
	return nil
}

func (tv *txMemoryView) History(_ context.Context, accountID int64, limit int) ([]credits.TransferRecord, error) {
	return tv.m.historyLocked(accountID, limit), nil
}
