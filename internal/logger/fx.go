package logger

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/config"
)

func NewFromConfig(cfg config.Config) (*zap.Logger, error) {
	log, err := New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("service", cfg.App.Name), zap.String("env", cfg.App.Environment)), nil
}

func registerHooks(lc fx.Lifecycle, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = log.Sync()
			return nil
		},
	})
}

// Module wires the global zap logger for the application.
var Module = fx.Module("logger",
	fx.Provide(NewFromConfig),
	fx.Invoke(registerHooks),
)
