package port

import (
	"context"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

type LedgerRepository interface {
	// Append persists a transaction and all of its movements atomically, assigning gap-free
	// per-product sequence numbers. Returns domain.ErrConflict if the id already exists.
	Append(ctx context.Context, txn domain.Transaction) (domain.Transaction, error)

	// GetTransaction returns domain.ErrNotFound if the id is unknown
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)

	// ListMovements returns a product's movements with sequence > after in ascending order.
	// A non-positive limit means no limit.
	ListMovements(ctx context.Context, productID string, after int64, limit int) ([]domain.StockMovement, error)

	// ListProducts returns every product id with at least one movement, sorted
	ListProducts(ctx context.Context) ([]string, error)
}
