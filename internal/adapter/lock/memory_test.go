package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

func TestKeyLocker_SerialisesSameKey(t *testing.T) {
	locker := NewKeyLocker()
	key := domain.StockKey{ProductID: "P"}

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Reserve(context.Background(), []domain.StockKey{key})
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, locker.locks)
}

func TestKeyLocker_OverlappingSetsDoNotDeadlock(t *testing.T) {
	locker := NewKeyLocker()
	a := domain.StockKey{ProductID: "A"}
	b := domain.StockKey{ProductID: "B"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		keys := []domain.StockKey{a, b}
		if i%2 == 1 {
			keys = []domain.StockKey{b, a}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Reserve(ctx, keys)
			if assert.NoError(t, err) {
				release()
			}
		}()
	}
	wg.Wait()
}

func TestKeyLocker_CancelledWait(t *testing.T) {
	locker := NewKeyLocker()
	key := domain.StockKey{ProductID: "P", Location: "main"}

	release, err := locker.Reserve(context.Background(), []domain.StockKey{key})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Reserve(ctx, []domain.StockKey{{ProductID: "Q"}, key})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Q must have been released when the reservation failed.
	releaseQ, err := locker.Reserve(context.Background(), []domain.StockKey{{ProductID: "Q"}})
	require.NoError(t, err)
	releaseQ()

	release()
	release()
	assert.Empty(t, locker.locks)
}

func TestOrdered(t *testing.T) {
	keys := ordered([]domain.StockKey{
		{ProductID: "B"},
		{ProductID: "A", Location: "x"},
		{ProductID: "B"},
		{ProductID: "A"},
	})
	assert.Equal(t, []domain.StockKey{
		{ProductID: "A"},
		{ProductID: "A", Location: "x"},
		{ProductID: "B"},
	}, keys)
}
