package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

const stockKeyPrefix = "stock:"

// Fields are only written when the stored last movement id matches ARGV[1]; a missing hash
// counts as id 0.
var compareAndSwapScript = redis.NewScript(`
local key = KEYS[1]
local index = KEYS[2]
local expected = ARGV[1]

local current = redis.call('HGET', key, 'last_movement_id')
if not current then
	current = '0'
end

if current ~= expected then
	return 0
end

redis.call('HSET', key,
	'quantity', ARGV[2],
	'last_movement_id', ARGV[3],
	'last_sequence', ARGV[4],
	'version', ARGV[5],
	'updated_at', ARGV[6])
redis.call('SADD', index, ARGV[7])
return 1
`)

// RedisAdapter keeps the stock projection in Redis hashes. Keys of one product share a hash
// tag so the script stays within one cluster slot.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func levelKey(key domain.StockKey) string {
	return stockKeyPrefix + "{" + key.ProductID + "}:loc:" + key.Location
}

func indexKey(productID string) string {
	return stockKeyPrefix + "{" + productID + "}:index"
}

func (r *RedisAdapter) Get(ctx context.Context, key domain.StockKey) (domain.StockLevel, error) {
	fields, err := r.client.HGetAll(ctx, levelKey(key)).Result()
	if err != nil {
		return domain.StockLevel{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return parseLevel(key, fields)
}

func (r *RedisAdapter) CompareAndSwap(ctx context.Context, expected snowflake.ID, next domain.StockLevel) error {
	ok, err := compareAndSwapScript.Run(ctx, r.client,
		[]string{levelKey(next.Key), indexKey(next.Key.ProductID)},
		expected.String(),
		next.Quantity,
		next.LastMovementID.String(),
		next.LastSequence,
		next.Version,
		next.UpdatedAt.UnixNano(),
		next.Key.Location,
	).Int()
	if err != nil {
		return fmt.Errorf("compare and swap %s: %w", next.Key, err)
	}
	if ok != 1 {
		return fmt.Errorf("%w: %s", domain.ErrStaleVersion, next.Key)
	}
	return nil
}

func (r *RedisAdapter) ListByProduct(ctx context.Context, productID string) ([]domain.StockLevel, error) {
	locations, err := r.client.SMembers(ctx, indexKey(productID)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", productID, err)
	}

	sort.Strings(locations)

	out := make([]domain.StockLevel, 0, len(locations))
	for _, location := range locations {
		level, err := r.Get(ctx, domain.StockKey{ProductID: productID, Location: location})
		if err != nil {
			return nil, err
		}
		out = append(out, level)
	}
	return out, nil
}

func parseLevel(key domain.StockKey, fields map[string]string) (domain.StockLevel, error) {
	level := domain.StockLevel{Key: key}
	if len(fields) == 0 {
		return level, nil
	}

	ints := make(map[string]int64, 5)
	for _, name := range []string{"quantity", "last_movement_id", "last_sequence", "version", "updated_at"} {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return domain.StockLevel{}, fmt.Errorf("parse %s of %s: %w", name, key, err)
		}
		ints[name] = v
	}

	level.Quantity = ints["quantity"]
	level.LastMovementID = snowflake.ID(ints["last_movement_id"])
	level.LastSequence = ints["last_sequence"]
	level.Version = ints["version"]
	level.UpdatedAt = time.Unix(0, ints["updated_at"]).UTC()
	return level, nil
}
