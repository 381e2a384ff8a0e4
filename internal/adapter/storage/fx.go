package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/config"
	"github.com/Yendza/controller-backend/internal/migration"
	"github.com/Yendza/controller-backend/internal/port"
	"github.com/Yendza/controller-backend/pkg/db"
)

func dbConfig(cfg config.DatabaseConfig) db.Config {
	return db.Config{
		Driver:          cfg.Driver,
		URL:             cfg.URL,
		Host:            cfg.Host,
		Port:            cfg.Port,
		Name:            cfg.Name,
		User:            cfg.User,
		Password:        cfg.Password,
		SSLMode:         cfg.SSLMode,
		MaxIdleConn:     cfg.MaxIdleConn,
		MaxOpenConn:     cfg.MaxOpenConn,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}

// NewLedgerRepository picks the ledger backend from database.driver and brings its schema up to
// date.
func NewLedgerRepository(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (port.LedgerRepository, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("ledger kept in memory; committed transactions are lost on restart")
		return NewMemoryLedger(), nil
	}

	conn, err := db.Open(dbConfig(cfg.Database), log)
	if err != nil {
		return nil, err
	}
	if err := migration.Apply(conn, Models()...); err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return sqlDB.Close() },
	})

	log.Info("ledger database ready", zap.String("driver", cfg.Database.Driver))
	return NewGormLedger(conn), nil
}

// NewRedisClient builds the shared client. It only dials when a redis-backed component is
// configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: 100,
	})

	used := cfg.Stock.Driver == "redis" || cfg.Lock.Driver == "redis"
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !used {
				return nil
			}
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
			}
			log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(context.Context) error { return client.Close() },
	})
	return client
}

// NewStockLevelRepository picks the projection store from stock.driver.
func NewStockLevelRepository(lc fx.Lifecycle, cfg config.Config, client *redis.Client, log *zap.Logger) (port.StockLevelRepository, error) {
	switch cfg.Stock.Driver {
	case "redis":
		return NewRedisAdapter(client), nil
	case "mysql":
		conn, err := sql.Open("mysql", cfg.Stock.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		conn.SetMaxOpenConns(50)
		conn.SetMaxIdleConns(25)

		adapter := NewMySQLAdapter(conn)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := conn.PingContext(ctx); err != nil {
					return fmt.Errorf("ping mysql: %w", err)
				}
				log.Info("connected to mysql stock store")
				return adapter.EnsureSchema(ctx)
			},
			OnStop: func(context.Context) error { return conn.Close() },
		})
		return adapter, nil
	default:
		return NewMemoryStockLevels(), nil
	}
}

var Module = fx.Module("storage",
	fx.Provide(
		NewLedgerRepository,
		NewRedisClient,
		NewStockLevelRepository,
	),
)
