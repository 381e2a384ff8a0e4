package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

const envPrefix = "STOCKLEDGER"

// Config is read once at startup and handed to constructors.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	GRPC        GRPCConfig        `mapstructure:"grpc"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Stock       StockConfig       `mapstructure:"stock"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Lock        LockConfig        `mapstructure:"lock"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Checker     CheckerConfig     `mapstructure:"checker"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Products    []ProductConfig   `mapstructure:"products"`

	source *viper.Viper
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
	Currency    string `mapstructure:"currency"`
	NodeID      int64  `mapstructure:"node_id"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConn     int           `mapstructure:"max_idle_conn"`
	MaxOpenConn     int           `mapstructure:"max_open_conn"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type StockConfig struct {
	Driver   string `mapstructure:"driver"`
	MySQLDSN string `mapstructure:"mysql_dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LockConfig struct {
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type CoordinatorConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
}

type LedgerConfig struct {
	Retry RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxTries        uint          `mapstructure:"max_tries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type CheckerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type CatalogConfig struct {
	Watch bool `mapstructure:"watch"`
}

type ProductConfig struct {
	ID               string `mapstructure:"id"`
	Unit             string `mapstructure:"unit"`
	ReorderThreshold int64  `mapstructure:"reorder_threshold"`
	AllowBackorder   bool   `mapstructure:"allow_backorder"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockledger")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Africa/Maputo")
	v.SetDefault("app.currency", "MZN")
	v.SetDefault("app.node_id", 1)

	v.SetDefault("log.level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", ":50051")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "stockledger")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conn", 5)
	v.SetDefault("database.max_open_conn", 20)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("stock.driver", "memory")
	v.SetDefault("stock.mysql_dsn", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("lock.driver", "memory")
	v.SetDefault("lock.ttl", "10s")
	v.SetDefault("lock.retry_interval", "20ms")

	v.SetDefault("coordinator.max_retries", 5)

	v.SetDefault("ledger.retry.max_tries", 4)
	v.SetDefault("ledger.retry.initial_interval", "50ms")
	v.SetDefault("ledger.retry.max_interval", "1s")

	v.SetDefault("checker.interval", "5m")
	v.SetDefault("checker.run_timeout", "1m")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("catalog.watch", false)
}

// Load reads path, or ledger.yaml from the search paths when path is empty. A missing file is
// not an error; defaults and environment still apply.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/stockledger")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return Config{}, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.source = v
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "memory", "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver %q not supported", c.Database.Driver)
	}
	switch c.Stock.Driver {
	case "memory", "redis", "mysql":
	default:
		return fmt.Errorf("stock.driver %q not supported", c.Stock.Driver)
	}
	if c.Stock.Driver == "mysql" && c.Stock.MySQLDSN == "" {
		return errors.New("stock.mysql_dsn is required for the mysql stock driver")
	}
	switch c.Lock.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("lock.driver %q not supported", c.Lock.Driver)
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	if c.App.NodeID < 0 || c.App.NodeID > 1023 {
		return fmt.Errorf("app.node_id %d out of range 0-1023", c.App.NodeID)
	}
	return nil
}

// CatalogProducts converts the configured product list.
func (c Config) CatalogProducts() []domain.Product {
	return toProducts(c.Products)
}

func toProducts(in []ProductConfig) []domain.Product {
	out := make([]domain.Product, len(in))
	for i, p := range in {
		out[i] = domain.Product{
			ID:               p.ID,
			Unit:             p.Unit,
			ReorderThreshold: p.ReorderThreshold,
			AllowBackorder:   p.AllowBackorder,
		}
	}
	return out
}

// WatchProducts calls apply with the product list each time the config file changes. A reload
// that fails to decode or that apply rejects is logged and the previous list stays active.
func (c Config) WatchProducts(log *zap.Logger, apply func([]domain.Product) error) {
	if c.source == nil || c.source.ConfigFileUsed() == "" {
		log.Info("catalog watch skipped, no config file in use")
		return
	}

	v := c.source
	v.OnConfigChange(func(e fsnotify.Event) {
		var products []ProductConfig
		if err := v.UnmarshalKey("products", &products); err != nil {
			log.Warn("catalog reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := apply(toProducts(products)); err != nil {
			log.Warn("invalid catalog ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		log.Info("catalog reloaded", zap.String("file", e.Name), zap.Int("products", len(products)))
	})
	v.WatchConfig()
}
