package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindPurchase   TransactionKind = "purchase"
	TransactionKindSale       TransactionKind = "sale"
	TransactionKindAdjustment TransactionKind = "adjustment"
	TransactionKindTransfer   TransactionKind = "transfer"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindPurchase, TransactionKindSale, TransactionKindAdjustment, TransactionKindTransfer:
		return true
	}
	return false
}

// Monetary reports whether the kind carries an amount.
func (k TransactionKind) Monetary() bool {
	return k == TransactionKindPurchase || k == TransactionKindSale
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCommitted TransactionStatus = "committed"
	TransactionStatusRejected  TransactionStatus = "rejected"
)

// Transaction owns the ordered movements it produced.
type Transaction struct {
	ID          string
	Kind        TransactionKind
	Status      TransactionStatus
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	Movements   []StockMovement
	OccurredAt  time.Time
	CommittedAt time.Time
}

// Keys returns the distinct stock keys touched by the transaction, in movement order.
func (t Transaction) Keys() []StockKey {
	seen := make(map[StockKey]struct{}, len(t.Movements))
	keys := make([]StockKey, 0, len(t.Movements))
	for _, m := range t.Movements {
		k := m.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// NetDeltas sums movement deltas per key. Request.Validate bounds lines and quantities so the sums
// of a validated request cannot overflow.
func (t Transaction) NetDeltas() map[StockKey]int64 {
	out := make(map[StockKey]int64, len(t.Movements))
	for _, m := range t.Movements {
		out[m.Key()] += m.Delta
	}
	return out
}
