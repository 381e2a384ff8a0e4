package storage

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

type transactionRecord struct {
	ID          string          `gorm:"primaryKey;size:128"`
	Kind        string          `gorm:"size:32;not null"`
	Status      string          `gorm:"size:16;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Currency    string          `gorm:"size:8;not null"`
	Reference   string          `gorm:"type:text;not null"`
	OccurredAt  time.Time       `gorm:"not null;index"`
	CommittedAt time.Time       `gorm:"not null"`
}

func (transactionRecord) TableName() string { return "ledger_transactions" }

type movementRecord struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false"`
	TransactionID string    `gorm:"size:128;not null;index"`
	ProductID     string    `gorm:"size:128;not null;uniqueIndex:ux_stock_movements_product_seq,priority:1"`
	Sequence      int64     `gorm:"not null;uniqueIndex:ux_stock_movements_product_seq,priority:2"`
	Location      string    `gorm:"size:128;not null"`
	Delta         int64     `gorm:"not null"`
	Kind          string    `gorm:"size:32;not null"`
	Position      int       `gorm:"not null"`
	OccurredAt    time.Time `gorm:"not null"`
}

func (movementRecord) TableName() string { return "stock_movements" }

// productSequence hands out gap-free per-product movement sequence numbers.
type productSequence struct {
	ProductID    string `gorm:"primaryKey;size:128"`
	LastSequence int64  `gorm:"not null"`
}

func (productSequence) TableName() string { return "ledger_product_sequences" }

// Models lists the ledger tables for AutoMigrate.
func Models() []any {
	return []any{&transactionRecord{}, &movementRecord{}, &productSequence{}}
}

func toTransactionRecord(txn domain.Transaction) transactionRecord {
	return transactionRecord{
		ID:          txn.ID,
		Kind:        string(txn.Kind),
		Status:      string(txn.Status),
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		Reference:   txn.Reference,
		OccurredAt:  txn.OccurredAt.UTC(),
		CommittedAt: txn.CommittedAt.UTC(),
	}
}

func (r transactionRecord) toDomain(movements []domain.StockMovement) domain.Transaction {
	return domain.Transaction{
		ID:          r.ID,
		Kind:        domain.TransactionKind(r.Kind),
		Status:      domain.TransactionStatus(r.Status),
		Amount:      r.Amount,
		Currency:    r.Currency,
		Reference:   r.Reference,
		Movements:   movements,
		OccurredAt:  r.OccurredAt.UTC(),
		CommittedAt: r.CommittedAt.UTC(),
	}
}

func toMovementRecord(m domain.StockMovement) movementRecord {
	return movementRecord{
		ID:            m.ID.Int64(),
		TransactionID: m.TransactionID,
		ProductID:     m.ProductID,
		Sequence:      m.Sequence,
		Location:      m.Location,
		Delta:         m.Delta,
		Kind:          string(m.Kind),
		Position:      m.Position,
		OccurredAt:    m.OccurredAt.UTC(),
	}
}

func (r movementRecord) toDomain() domain.StockMovement {
	return domain.StockMovement{
		ID:            snowflake.ID(r.ID),
		TransactionID: r.TransactionID,
		ProductID:     r.ProductID,
		Location:      r.Location,
		Delta:         r.Delta,
		Kind:          domain.MovementKind(r.Kind),
		Sequence:      r.Sequence,
		Position:      r.Position,
		OccurredAt:    r.OccurredAt.UTC(),
	}
}
