package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type MovementKind string

const (
	MovementKindPurchase    MovementKind = "purchase"
	MovementKindSale        MovementKind = "sale"
	MovementKindAdjustment  MovementKind = "adjustment"
	MovementKindTransferIn  MovementKind = "transfer_in"
	MovementKindTransferOut MovementKind = "transfer_out"
)

// StockMovement is immutable once written. Corrections are new compensating movements.
type StockMovement struct {
	ID            snowflake.ID
	TransactionID string
	ProductID     string
	Location      string
	Delta         int64
	Kind          MovementKind
	Sequence      int64 // per product, assigned by the ledger on append
	Position      int   // index within the owning transaction
	OccurredAt    time.Time
}

func (m StockMovement) Key() StockKey {
	return StockKey{ProductID: m.ProductID, Location: m.Location}
}
