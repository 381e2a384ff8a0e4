package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

const (
	lockKeyPrefix = "lock:stock:"

	defaultLockTTL   = 10 * time.Second
	defaultLockRetry = 20 * time.Millisecond
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type RedisConfig struct {
	TTL           time.Duration
	RetryInterval time.Duration
}

// RedisLocker reserves stock keys across processes with SET NX. Each key carries a random token
// so a holder whose TTL lapsed cannot delete a lock taken over by someone else.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
	retry  time.Duration
	log    *zap.Logger
}

func NewRedisLocker(client *redis.Client, cfg RedisConfig, log *zap.Logger) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultLockTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultLockRetry
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    cfg.TTL,
		retry:  cfg.RetryInterval,
		log:    log.Named("lock.redis"),
	}
}

type heldLock struct {
	key   string
	token string
}

func (l *RedisLocker) Reserve(ctx context.Context, keys []domain.StockKey) (func(), error) {
	keys = ordered(keys)
	held := make([]heldLock, 0, len(keys))

	for _, key := range keys {
		h, err := l.acquire(ctx, lockKeyPrefix+key.String())
		if err != nil {
			l.releaseAll(held)
			return nil, err
		}
		held = append(held, h)
	}

	var once sync.Once
	return func() { once.Do(func() { l.releaseAll(held) }) }, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key string) (heldLock, error) {
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return heldLock{}, err
			}
			return heldLock{}, fmt.Errorf("%w: lock %s: %w", domain.ErrStorageFailure, key, err)
		}
		if ok {
			return heldLock{key: key, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return heldLock{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// releaseAll runs detached from the caller's context so a cancelled request still frees its keys.
func (l *RedisLocker) releaseAll(held []heldLock) {
	ctx, cancel := context.WithTimeout(context.Background(), l.ttl)
	defer cancel()

	for i := len(held) - 1; i >= 0; i-- {
		if err := l.script.Run(ctx, l.client, []string{held[i].key}, held[i].token).Err(); err != nil {
			l.log.Warn("release lock failed", zap.String("key", held[i].key), zap.Error(err))
		}
	}
}
