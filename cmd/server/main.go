package main

import (
	"flag"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/adapter/catalog"
	"github.com/Yendza/controller-backend/internal/adapter/handler"
	"github.com/Yendza/controller-backend/internal/adapter/lock"
	"github.com/Yendza/controller-backend/internal/adapter/storage"
	"github.com/Yendza/controller-backend/internal/config"
	"github.com/Yendza/controller-backend/internal/core/service"
	"github.com/Yendza/controller-backend/internal/logger"
	"github.com/Yendza/controller-backend/internal/observability"
)

func options(configPath string) fx.Option {
	return fx.Options(
		fx.Supply(config.Path(configPath)),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		storage.Module,
		lock.Module,
		catalog.Module,

		// Ledger core and transports
		service.Module,
		handler.Module,
	)
}

func main() {
	configPath := flag.String("config", "", "path to ledger.yaml (searched in /etc/stockledger and . when empty)")
	flag.Parse()

	fx.New(options(*configPath)).Run()
}
