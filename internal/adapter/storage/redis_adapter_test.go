package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func cleanupRedisProduct(ctx context.Context, client *redis.Client, productID string, locations ...string) {
	keys := []string{indexKey(productID)}
	for _, loc := range locations {
		keys = append(keys, levelKey(domain.StockKey{ProductID: productID, Location: loc}))
	}
	client.Del(ctx, keys...)
}

func TestRedisCompareAndSwap_CreatesLevel(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := domain.StockKey{ProductID: "redis-test-create", Location: "main"}
	cleanupRedisProduct(ctx, client, key.ProductID, key.Location)
	defer cleanupRedisProduct(ctx, client, key.ProductID, key.Location)

	next := domain.StockLevel{
		Key:            key,
		Quantity:       10,
		LastMovementID: snowflake.ID(101),
		LastSequence:   1,
		Version:        1,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := adapter.CompareAndSwap(ctx, 0, next); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	level, err := adapter.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if level.Quantity != 10 {
		t.Errorf("expected quantity 10, got %d", level.Quantity)
	}
	if level.LastMovementID != 101 {
		t.Errorf("expected last movement 101, got %d", level.LastMovementID)
	}
}

func TestRedisCompareAndSwap_Stale(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := domain.StockKey{ProductID: "redis-test-stale"}
	cleanupRedisProduct(ctx, client, key.ProductID, key.Location)
	defer cleanupRedisProduct(ctx, client, key.ProductID, key.Location)

	first := domain.StockLevel{Key: key, Quantity: 5, LastMovementID: 7, LastSequence: 1, Version: 1, UpdatedAt: time.Now()}
	if err := adapter.CompareAndSwap(ctx, 0, first); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	second := domain.StockLevel{Key: key, Quantity: 3, LastMovementID: 8, LastSequence: 2, Version: 2, UpdatedAt: time.Now()}
	err := adapter.CompareAndSwap(ctx, 0, second)
	if !errors.Is(err, domain.ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}

	level, _ := adapter.Get(ctx, key)
	if level.Quantity != 5 {
		t.Errorf("expected quantity 5 after stale write, got %d", level.Quantity)
	}
}

func TestRedisGet_Missing(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	adapter := NewRedisAdapter(client)
	level, err := adapter.Get(context.Background(), domain.StockKey{ProductID: "redis-test-missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level.Quantity != 0 || level.LastMovementID != 0 {
		t.Errorf("expected zero level, got %+v", level)
	}
}

func TestRedisListByProduct(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	product := "redis-test-list"
	cleanupRedisProduct(ctx, client, product, "b", "a")
	defer cleanupRedisProduct(ctx, client, product, "b", "a")

	for i, loc := range []string{"b", "a"} {
		level := domain.StockLevel{
			Key:            domain.StockKey{ProductID: product, Location: loc},
			Quantity:       int64(i + 1),
			LastMovementID: snowflake.ID(i + 1),
			Version:        1,
			UpdatedAt:      time.Now(),
		}
		if err := adapter.CompareAndSwap(ctx, 0, level); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
	}

	levels, err := adapter.ListByProduct(ctx, product)
	if err != nil {
		t.Fatalf("ListByProduct failed: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
	if levels[0].Key.Location != "a" || levels[1].Key.Location != "b" {
		t.Errorf("expected locations ordered a,b got %s,%s", levels[0].Key.Location, levels[1].Key.Location)
	}
}

func TestRedisCompareAndSwap_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := domain.StockKey{ProductID: "redis-test-concurrent"}
	cleanupRedisProduct(ctx, client, key.ProductID, key.Location)
	defer cleanupRedisProduct(ctx, client, key.ProductID, key.Location)

	var wg sync.WaitGroup
	var wins int32

	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			next := domain.StockLevel{Key: key, Quantity: int64(id), LastMovementID: snowflake.ID(id), Version: 1, UpdatedAt: time.Now()}
			if err := adapter.CompareAndSwap(ctx, 0, next); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winning swap, got %d", wins)
	}
}
