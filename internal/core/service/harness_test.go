package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/adapter/catalog"
	"github.com/Yendza/controller-backend/internal/adapter/lock"
	"github.com/Yendza/controller-backend/internal/adapter/storage"
	"github.com/Yendza/controller-backend/internal/core/domain"
	"github.com/Yendza/controller-backend/internal/port"
)

var fastRetry = RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

type harness struct {
	ledgerRepo  *storage.MemoryLedger
	stock       *storage.MemoryStockLevels
	catalog     *catalog.Static
	ledger      *LedgerService
	aggregator  *StockAggregator
	checker     *ConsistencyChecker
	coordinator *TransactionCoordinator
}

func newHarness(t *testing.T, products ...domain.Product) *harness {
	return newHarnessWithStock(t, storage.NewMemoryStockLevels(), products...)
}

func newHarnessWithStock(t *testing.T, stock port.StockLevelRepository, products ...domain.Product) *harness {
	t.Helper()

	if len(products) == 0 {
		products = []domain.Product{{ID: "P", Unit: "unit"}, {ID: "Q", Unit: "unit"}}
	}
	cat, err := catalog.New(products)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	ledgerRepo := storage.NewMemoryLedger()
	locker := lock.NewKeyLocker()

	h := &harness{ledgerRepo: ledgerRepo, catalog: cat}
	if mem, ok := stock.(*storage.MemoryStockLevels); ok {
		h.stock = mem
	}
	h.ledger = NewLedgerService(ledgerRepo, fastRetry, log, nil)
	h.aggregator = NewStockAggregator(stock, log)
	h.checker = NewConsistencyChecker(h.ledger, h.aggregator, locker, cat, CheckerConfig{}, log, nil)
	h.coordinator = NewTransactionCoordinator(cat, h.ledger, h.aggregator, locker, h.checker, node,
		CoordinatorConfig{DefaultCurrency: "MZN"}, log, nil)
	return h
}

func (h *harness) submit(t *testing.T, id string, kind domain.TransactionKind, lines ...domain.Line) domain.Transaction {
	t.Helper()
	txn, err := h.coordinator.Submit(context.Background(), domain.Request{TransactionID: id, Kind: kind, Lines: lines})
	require.NoError(t, err)
	return txn
}

func (h *harness) level(t *testing.T, product, location string) int64 {
	t.Helper()
	level, err := h.aggregator.CurrentLevel(context.Background(), domain.StockKey{ProductID: product, Location: location})
	require.NoError(t, err)
	return level.Quantity
}

// flakyCAS fails every compare-and-swap while broken is set.
type flakyCAS struct {
	port.StockLevelRepository
	broken atomic.Bool
}

var errInjected = errors.New("injected stock store failure")

func (f *flakyCAS) CompareAndSwap(ctx context.Context, expected snowflake.ID, next domain.StockLevel) error {
	if f.broken.Load() {
		return errInjected
	}
	return f.StockLevelRepository.CompareAndSwap(ctx, expected, next)
}

// churningStock reports a new last movement id on every read, as if another writer always
// committed in between.
type churningStock struct {
	port.StockLevelRepository
	reads atomic.Int64
}

func (c *churningStock) Get(ctx context.Context, key domain.StockKey) (domain.StockLevel, error) {
	level, err := c.StockLevelRepository.Get(ctx, key)
	level.LastMovementID = snowflake.ID(c.reads.Add(1))
	return level, err
}
