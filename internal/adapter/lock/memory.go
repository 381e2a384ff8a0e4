package lock

import (
	"context"
	"sync"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

type keyLock struct {
	sem  chan struct{}
	refs int
}

// KeyLocker serialises work per stock key inside one process.
type KeyLocker struct {
	mu    sync.Mutex
	locks map[domain.StockKey]*keyLock
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{locks: make(map[domain.StockKey]*keyLock)}
}

func (l *KeyLocker) Reserve(ctx context.Context, keys []domain.StockKey) (func(), error) {
	keys = ordered(keys)
	held := make([]domain.StockKey, 0, len(keys))

	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			l.releaseAll(held)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(func() { l.releaseAll(held) }) }, nil
}

func (l *KeyLocker) acquire(ctx context.Context, key domain.StockKey) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, kl)
		return ctx.Err()
	}
}

func (l *KeyLocker) releaseAll(keys []domain.StockKey) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		kl := l.locks[keys[i]]
		l.mu.Unlock()

		<-kl.sem
		l.unref(keys[i], kl)
	}
}

func (l *KeyLocker) unref(key domain.StockKey, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
