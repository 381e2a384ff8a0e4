package port

import (
	"context"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

// Reserver grants exclusive use of stock keys to one writer at a time.
type Reserver interface {
	// Reserve blocks until every key is held or ctx is done. The returned release func is
	// safe to call more than once.
	Reserve(ctx context.Context, keys []domain.StockKey) (release func(), err error)
}
