package port

import (
	"context"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

type ProductCatalog interface {
	// Product returns domain.ErrNotFound for unknown ids
	Product(ctx context.Context, id string) (domain.Product, error)

	Products(ctx context.Context) ([]domain.Product, error)
}
