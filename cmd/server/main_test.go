package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/Yendza/controller-backend/internal/adapter/handler"
	"github.com/Yendza/controller-backend/internal/core/service"
)

const testConfig = `
app:
  environment: test
log:
  level: error
http:
  addr: 127.0.0.1:0
grpc:
  addr: 127.0.0.1:0
products:
  - id: integration-test-item
    unit: unit
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return path
}

func TestOptions_GraphIsComplete(t *testing.T) {
	require.NoError(t, fx.ValidateApp(options(writeConfig(t))))
}

type flow struct {
	engine  *gin.Engine
	checker *service.ConsistencyChecker
}

func startApp(t *testing.T) flow {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var f flow
	app := fxtest.New(t, options(writeConfig(t)), fx.Populate(&f.engine, &f.checker))
	app.RequireStart()
	t.Cleanup(app.RequireStop)
	return f
}

func (f flow) submit(t *testing.T, kind string, qty int64) int {
	t.Helper()

	body, err := json.Marshal(handler.SubmitRequest{
		TransactionID: uuid.NewString(),
		Kind:          kind,
		Lines:         []handler.LineRequest{{ProductID: "integration-test-item", Quantity: qty}},
	})
	if err != nil {
		t.Error(err)
		return 0
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w.Code
}

func (f flow) level(t *testing.T) handler.LevelResponse {
	t.Helper()

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stock/integration-test-item", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var out handler.LevelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func runFlashSale(t *testing.T, f flow) {
	const initialStock = 10
	const totalRequests = 20

	require.Equal(t, http.StatusOK, f.submit(t, "purchase", initialStock))

	var success, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch f.submit(t, "sale", 1) {
			case http.StatusOK:
				success.Add(1)
			case http.StatusUnprocessableEntity:
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), success.Load())
	assert.Equal(t, int32(totalRequests-initialStock), rejected.Load())

	level := f.level(t)
	assert.Equal(t, int64(0), level.Quantity)
	assert.Equal(t, int64(initialStock+1), level.LastSequence)

	results, err := f.checker.Reconcile(context.Background(), "integration-test-item")
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "consistent", string(r.Status), r.Key.String())
	}
}

func TestIntegration_FlashSaleInMemory(t *testing.T) {
	runFlashSale(t, startApp(t))
}

func TestIntegration_FlashSaleWithRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	keys, err := rdb.Keys(context.Background(), "stock:{integration-test-item}:*").Result()
	require.NoError(t, err)
	if len(keys) > 0 {
		require.NoError(t, rdb.Del(context.Background(), keys...).Err())
	}

	t.Setenv("STOCKLEDGER_REDIS_ADDR", addr)
	t.Setenv("STOCKLEDGER_STOCK_DRIVER", "redis")
	t.Setenv("STOCKLEDGER_LOCK_DRIVER", "redis")
	t.Setenv("STOCKLEDGER_APP_NODE_ID", fmt.Sprint(7))

	runFlashSale(t, startApp(t))
}
