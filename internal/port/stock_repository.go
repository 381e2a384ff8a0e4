package port

import (
	"context"

	"github.com/bwmarrin/snowflake"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

type StockLevelRepository interface {
	// Get returns the stored level, or a zero level for the key if none exists
	Get(ctx context.Context, key domain.StockKey) (domain.StockLevel, error)

	// CompareAndSwap stores next only if the stored last movement id equals expected.
	// Returns domain.ErrStaleVersion otherwise.
	CompareAndSwap(ctx context.Context, expected snowflake.ID, next domain.StockLevel) error

	// ListByProduct returns every stored level of a product across locations
	ListByProduct(ctx context.Context, productID string) ([]domain.StockLevel, error)
}
