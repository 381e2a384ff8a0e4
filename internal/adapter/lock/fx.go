package lock

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/config"
	"github.com/Yendza/controller-backend/internal/port"
)

func NewReserver(cfg config.Config, client *redis.Client, log *zap.Logger) port.Reserver {
	if cfg.Lock.Driver == "redis" {
		return NewRedisLocker(client, RedisConfig{TTL: cfg.Lock.TTL, RetryInterval: cfg.Lock.RetryInterval}, log)
	}
	if cfg.Stock.Driver != "memory" {
		log.Warn("shared stock store with in-process locks; run a single instance",
			zap.String("stock_driver", cfg.Stock.Driver))
	}
	return NewKeyLocker()
}

var Module = fx.Module("lock",
	fx.Provide(NewReserver),
)
