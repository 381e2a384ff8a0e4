package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

// MemoryLedger is a process-local LedgerRepository.
type MemoryLedger struct {
	mu           sync.RWMutex
	transactions map[string]domain.Transaction
	movements    map[string][]domain.StockMovement
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		transactions: make(map[string]domain.Transaction),
		movements:    make(map[string][]domain.StockMovement),
	}
}

func (l *MemoryLedger) Append(_ context.Context, txn domain.Transaction) (domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.transactions[txn.ID]; exists {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s already recorded", domain.ErrConflict, txn.ID)
	}

	out := txn
	out.Movements = make([]domain.StockMovement, len(txn.Movements))
	for i, m := range txn.Movements {
		m.Sequence = int64(len(l.movements[m.ProductID])) + 1
		l.movements[m.ProductID] = append(l.movements[m.ProductID], m)
		out.Movements[i] = m
	}
	l.transactions[txn.ID] = out
	return cloneTransaction(out), nil
}

func (l *MemoryLedger) GetTransaction(_ context.Context, id string) (domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	txn, ok := l.transactions[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return cloneTransaction(txn), nil
}

func (l *MemoryLedger) ListMovements(_ context.Context, productID string, after int64, limit int) ([]domain.StockMovement, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.movements[productID]
	start := sort.Search(len(all), func(i int) bool { return all[i].Sequence > after })
	end := len(all)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	out := make([]domain.StockMovement, end-start)
	copy(out, all[start:end])
	return out, nil
}

func (l *MemoryLedger) ListProducts(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.movements))
	for id := range l.movements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneTransaction(txn domain.Transaction) domain.Transaction {
	movements := make([]domain.StockMovement, len(txn.Movements))
	copy(movements, txn.Movements)
	txn.Movements = movements
	return txn
}
