package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Yendza/controller-backend/internal/core/domain"
	"github.com/Yendza/controller-backend/internal/port"
)

func newSQLiteLedger(t *testing.T) *GormLedger {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(Models()...))
	return NewGormLedger(conn)
}

func ledgerImplementations(t *testing.T) map[string]func(t *testing.T) port.LedgerRepository {
	return map[string]func(t *testing.T) port.LedgerRepository{
		"memory": func(*testing.T) port.LedgerRepository { return NewMemoryLedger() },
		"sqlite": func(t *testing.T) port.LedgerRepository { return newSQLiteLedger(t) },
	}
}

func testTransaction(node *snowflake.Node, id string, movements ...domain.StockMovement) domain.Transaction {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := range movements {
		movements[i].ID = node.Generate()
		movements[i].TransactionID = id
		movements[i].Position = i
		movements[i].OccurredAt = now
	}
	return domain.Transaction{
		ID:          id,
		Kind:        domain.TransactionKindSale,
		Status:      domain.TransactionStatusCommitted,
		Amount:      decimal.RequireFromString("125.50"),
		Currency:    "MZN",
		Movements:   movements,
		OccurredAt:  now,
		CommittedAt: now,
	}
}

func TestLedger_AppendAssignsSequences(t *testing.T) {
	for name, build := range ledgerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ledger := build(t)
			node, err := snowflake.NewNode(1)
			require.NoError(t, err)

			first, err := ledger.Append(ctx, testTransaction(node, "t-1",
				domain.StockMovement{ProductID: "P", Delta: 10, Kind: domain.MovementKindPurchase},
				domain.StockMovement{ProductID: "Q", Delta: 3, Kind: domain.MovementKindPurchase},
			))
			require.NoError(t, err)
			assert.Equal(t, int64(1), first.Movements[0].Sequence)
			assert.Equal(t, int64(1), first.Movements[1].Sequence)

			second, err := ledger.Append(ctx, testTransaction(node, "t-2",
				domain.StockMovement{ProductID: "P", Delta: -4, Kind: domain.MovementKindSale},
				domain.StockMovement{ProductID: "P", Location: "shop", Delta: 4, Kind: domain.MovementKindTransferIn},
			))
			require.NoError(t, err)
			assert.Equal(t, int64(2), second.Movements[0].Sequence)
			assert.Equal(t, int64(3), second.Movements[1].Sequence)

			got, err := ledger.GetTransaction(ctx, "t-2")
			require.NoError(t, err)
			require.Len(t, got.Movements, 2)
			assert.Equal(t, "shop", got.Movements[1].Location)
			assert.True(t, got.Amount.Equal(decimal.RequireFromString("125.50")))
			assert.Equal(t, domain.TransactionStatusCommitted, got.Status)
		})
	}
}

func TestLedger_DuplicateIsConflict(t *testing.T) {
	for name, build := range ledgerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ledger := build(t)
			node, _ := snowflake.NewNode(1)

			_, err := ledger.Append(ctx, testTransaction(node, "dup", domain.StockMovement{ProductID: "P", Delta: 1}))
			require.NoError(t, err)

			_, err = ledger.Append(ctx, testTransaction(node, "dup", domain.StockMovement{ProductID: "P", Delta: 1}))
			assert.ErrorIs(t, err, domain.ErrConflict)

			movements, err := ledger.ListMovements(ctx, "P", 0, 0)
			require.NoError(t, err)
			assert.Len(t, movements, 1)
		})
	}
}

func TestLedger_GetTransactionNotFound(t *testing.T) {
	for name, build := range ledgerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := build(t).GetTransaction(context.Background(), "missing")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestLedger_ListMovementsPaging(t *testing.T) {
	for name, build := range ledgerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ledger := build(t)
			node, _ := snowflake.NewNode(1)

			for i := 0; i < 5; i++ {
				_, err := ledger.Append(ctx, testTransaction(node, fmt.Sprintf("t-%d", i),
					domain.StockMovement{ProductID: "P", Delta: int64(i + 1)}))
				require.NoError(t, err)
			}

			page, err := ledger.ListMovements(ctx, "P", 2, 2)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, int64(3), page[0].Sequence)
			assert.Equal(t, int64(4), page[1].Sequence)

			rest, err := ledger.ListMovements(ctx, "P", 4, 0)
			require.NoError(t, err)
			require.Len(t, rest, 1)
			assert.Equal(t, int64(5), rest[0].Delta)

			none, err := ledger.ListMovements(ctx, "unknown", 0, 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestLedger_ListProducts(t *testing.T) {
	for name, build := range ledgerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ledger := build(t)
			node, _ := snowflake.NewNode(1)

			empty, err := ledger.ListProducts(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)

			_, err = ledger.Append(ctx, testTransaction(node, "t-1",
				domain.StockMovement{ProductID: "Q", Delta: 1},
				domain.StockMovement{ProductID: "P", Delta: 2}))
			require.NoError(t, err)
			_, err = ledger.Append(ctx, testTransaction(node, "t-2",
				domain.StockMovement{ProductID: "P", Delta: 3}))
			require.NoError(t, err)

			ids, err := ledger.ListProducts(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"P", "Q"}, ids)
		})
	}
}

func TestMemoryLedger_ConcurrentAppendsStayGapFree(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	node, _ := snowflake.NewNode(1)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.Append(ctx, testTransaction(node, fmt.Sprintf("c-%d", i),
				domain.StockMovement{ProductID: "P", Delta: 1}))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	movements, err := ledger.ListMovements(ctx, "P", 0, 0)
	require.NoError(t, err)
	require.Len(t, movements, 50)
	for i, m := range movements {
		assert.Equal(t, int64(i+1), m.Sequence)
	}
}

func TestMemoryStockLevels_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStockLevels()
	key := domain.StockKey{ProductID: "P", Location: "main"}

	level, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, level.Quantity)

	require.NoError(t, store.CompareAndSwap(ctx, 0, domain.StockLevel{Key: key, Quantity: 6, LastMovementID: 5, Version: 1}))
	assert.ErrorIs(t, store.CompareAndSwap(ctx, 0, domain.StockLevel{Key: key, Quantity: 1, LastMovementID: 6, Version: 1}), domain.ErrStaleVersion)
	require.NoError(t, store.CompareAndSwap(ctx, 5, domain.StockLevel{Key: key, Quantity: 2, LastMovementID: 6, Version: 2}))

	require.NoError(t, store.CompareAndSwap(ctx, 0, domain.StockLevel{Key: domain.StockKey{ProductID: "P"}, Quantity: 9, LastMovementID: 7, Version: 1}))

	levels, err := store.ListByProduct(ctx, "P")
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "", levels[0].Key.Location)
	assert.Equal(t, int64(2), levels[1].Quantity)
}
