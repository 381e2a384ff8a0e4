package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Yendza/controller-backend/internal/core/domain"
	"github.com/Yendza/controller-backend/pkg/db"
)

// GormLedger stores the ledger in a relational database. One database transaction covers the
// transaction row, the sequence counters and every movement.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(conn *gorm.DB) *GormLedger {
	return &GormLedger{db: conn}
}

func (l *GormLedger) Append(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	out := cloneTransaction(txn)

	counts := make(map[string]int64)
	for _, m := range out.Movements {
		counts[m.ProductID]++
	}
	products := make([]string, 0, len(counts))
	for p := range counts {
		products = append(products, p)
	}
	sort.Strings(products)

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := toTransactionRecord(out)
		if err := tx.Create(&record).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%w: transaction %s already recorded", domain.ErrConflict, txn.ID)
			}
			return fmt.Errorf("insert transaction: %w", err)
		}

		// Counters are locked in product order so concurrent appends cannot deadlock.
		next := make(map[string]int64, len(products))
		for _, p := range products {
			seq := productSequence{ProductID: p}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
				return fmt.Errorf("init sequence %s: %w", p, err)
			}
			if err := tx.Model(&productSequence{}).
				Where("product_id = ?", p).
				Update("last_sequence", gorm.Expr("last_sequence + ?", counts[p])).Error; err != nil {
				return fmt.Errorf("advance sequence %s: %w", p, err)
			}
			if err := tx.Where("product_id = ?", p).Take(&seq).Error; err != nil {
				return fmt.Errorf("read sequence %s: %w", p, err)
			}
			next[p] = seq.LastSequence - counts[p] + 1
		}

		records := make([]movementRecord, len(out.Movements))
		for i := range out.Movements {
			m := &out.Movements[i]
			m.Sequence = next[m.ProductID]
			next[m.ProductID]++
			records[i] = toMovementRecord(*m)
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("insert movements: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return out, nil
}

func (l *GormLedger) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	var record transactionRecord
	err := l.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("query transaction: %w", err)
	}

	var rows []movementRecord
	if err := l.db.WithContext(ctx).
		Where("transaction_id = ?", id).
		Order("position asc").
		Find(&rows).Error; err != nil {
		return domain.Transaction{}, fmt.Errorf("query movements: %w", err)
	}

	movements := make([]domain.StockMovement, len(rows))
	for i, r := range rows {
		movements[i] = r.toDomain()
	}
	return record.toDomain(movements), nil
}

func (l *GormLedger) ListMovements(ctx context.Context, productID string, after int64, limit int) ([]domain.StockMovement, error) {
	q := l.db.WithContext(ctx).
		Where("product_id = ? AND sequence > ?", productID, after).
		Order("sequence asc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []movementRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}

	out := make([]domain.StockMovement, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (l *GormLedger) ListProducts(ctx context.Context) ([]string, error) {
	var ids []string
	if err := l.db.WithContext(ctx).
		Model(&productSequence{}).
		Where("last_sequence > 0").
		Order("product_id asc").
		Pluck("product_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return ids, nil
}
