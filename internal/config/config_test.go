package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Name)
	assert.Equal(t, "Africa/Maputo", cfg.App.Timezone)
	assert.Equal(t, "MZN", cfg.App.Currency)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Coordinator.MaxRetries)
	assert.Equal(t, uint(4), cfg.Ledger.Retry.MaxTries)
	assert.Equal(t, 50*time.Millisecond, cfg.Ledger.Retry.InitialInterval)
	assert.Equal(t, 5*time.Minute, cfg.Checker.Interval)
	assert.Equal(t, 10*time.Second, cfg.Lock.TTL)
	assert.Empty(t, cfg.CatalogProducts())
}

func TestLoad_ProductsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  name: ledger-test
coordinator:
  max_retries: 9
products:
  - id: rice-25kg
    unit: bag
    reorder_threshold: 10
  - id: cement
    unit: bag
    allow_backorder: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 9, cfg.Coordinator.MaxRetries)
	assert.Equal(t, []domain.Product{
		{ID: "rice-25kg", Unit: "bag", ReorderThreshold: 10},
		{ID: "cement", Unit: "bag", AllowBackorder: true},
	}, cfg.CatalogProducts())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STOCKLEDGER_LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://ledger@db/ledger")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres://ledger@db/ledger", cfg.Database.URL)
}

func TestLoad_RejectsUnknownDrivers(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  driver: oracle\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "stock:\n  driver: mysql\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "app:\n  timezone: Mars/Olympus\n"))
	assert.Error(t, err)
}

func TestWatchProducts_Reload(t *testing.T) {
	path := writeConfig(t, "products:\n  - id: P\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	reloaded := make(chan []domain.Product, 16)
	cfg.WatchProducts(zap.NewNop(), func(p []domain.Product) error {
		select {
		case reloaded <- p:
		default:
		}
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("products:\n  - id: P\n  - id: Q\n"), 0o600))

	// A write can surface as several events; wait for the complete list.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case products := <-reloaded:
			if len(products) == 2 {
				return
			}
		case <-timeout:
			t.Fatal("catalog reload not observed")
		}
	}
}
