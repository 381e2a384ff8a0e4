package domain

import "time"

type ReconcileStatus string

const (
	ReconcileConsistent    ReconcileStatus = "consistent"
	ReconcileDriftDetected ReconcileStatus = "drift_detected"
)

// Reconciliation is the outcome of comparing one projected level with ledger replay.
type Reconciliation struct {
	Key       StockKey
	Status    ReconcileStatus
	Expected  int64
	Actual    int64
	CheckedAt time.Time
}

func (r Reconciliation) Drift() bool {
	return r.Status == ReconcileDriftDetected
}
