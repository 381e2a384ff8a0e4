package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

// Static serves a product list loaded from configuration. Replace swaps the whole set at once,
// so readers never see a partially applied reload.
type Static struct {
	products atomic.Pointer[map[string]domain.Product]
}

func New(products []domain.Product) (*Static, error) {
	c := &Static{}
	if err := c.Replace(products); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Static) Replace(products []domain.Product) error {
	next := make(map[string]domain.Product, len(products))
	for _, p := range products {
		if p.ID == "" || strings.TrimSpace(p.ID) != p.ID || strings.Contains(p.ID, "@") {
			return fmt.Errorf("%w: invalid product id %q", domain.ErrValidation, p.ID)
		}
		if p.ReorderThreshold < 0 {
			return fmt.Errorf("%w: product %s: negative reorder threshold", domain.ErrValidation, p.ID)
		}
		if _, dup := next[p.ID]; dup {
			return fmt.Errorf("%w: duplicate product %s", domain.ErrValidation, p.ID)
		}
		next[p.ID] = p
	}
	c.products.Store(&next)
	return nil
}

func (c *Static) Product(_ context.Context, id string) (domain.Product, error) {
	p, ok := (*c.products.Load())[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (c *Static) Products(_ context.Context) ([]domain.Product, error) {
	all := *c.products.Load()
	out := make([]domain.Product, 0, len(all))
	for _, p := range all {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
