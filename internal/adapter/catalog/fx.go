package catalog

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/config"
	"github.com/Yendza/controller-backend/internal/port"
)

func provide(cfg config.Config, log *zap.Logger) (*Static, error) {
	c, err := New(cfg.CatalogProducts())
	if err != nil {
		return nil, err
	}
	if len(cfg.Products) == 0 {
		log.Warn("catalog is empty; every submission will be rejected as unknown product")
	}
	return c, nil
}

func watch(cfg config.Config, c *Static, log *zap.Logger) {
	if !cfg.Catalog.Watch {
		return
	}
	cfg.WatchProducts(log.Named("catalog"), c.Replace)
}

var Module = fx.Module("catalog",
	fx.Provide(
		provide,
		func(c *Static) port.ProductCatalog { return c },
	),
	fx.Invoke(watch),
)
