package handler

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/adapter/catalog"
	"github.com/Yendza/controller-backend/internal/adapter/lock"
	"github.com/Yendza/controller-backend/internal/adapter/storage"
	"github.com/Yendza/controller-backend/internal/core/domain"
	"github.com/Yendza/controller-backend/internal/core/service"
	"github.com/Yendza/controller-backend/internal/observability"
)

type testApp struct {
	coordinator *service.TransactionCoordinator
	ledger      *service.LedgerService
	checker     *service.ConsistencyChecker
	catalog     *catalog.Static
	registry    *prometheus.Registry
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cat, err := catalog.New([]domain.Product{
		{ID: "rice-25kg", Unit: "bag", ReorderThreshold: 5},
		{ID: "oil-5l", Unit: "bottle"},
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	log := zap.NewNop()
	locker := lock.NewKeyLocker()
	ledger := service.NewLedgerService(storage.NewMemoryLedger(), service.DefaultRetryConfig(), log, metrics)
	aggregator := service.NewStockAggregator(storage.NewMemoryStockLevels(), log)
	checker := service.NewConsistencyChecker(ledger, aggregator, locker, cat, service.CheckerConfig{}, log, metrics)
	coordinator := service.NewTransactionCoordinator(cat, ledger, aggregator, locker, checker, node,
		service.CoordinatorConfig{DefaultCurrency: "MZN"}, log, metrics)

	return &testApp{
		coordinator: coordinator,
		ledger:      ledger,
		checker:     checker,
		catalog:     cat,
		registry:    reg,
	}
}

func (a *testApp) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHTTPHandler(a.coordinator, a.ledger, a.checker, a.catalog, zap.NewNop())
	return h.NewRouter(a.registry)
}

func (a *testApp) grpcHandler() *GRPCHandler {
	return NewGRPCHandler(a.coordinator, a.ledger, a.checker, a.catalog)
}
