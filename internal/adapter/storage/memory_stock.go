package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

// MemoryStockLevels is a process-local StockLevelRepository.
type MemoryStockLevels struct {
	mu     sync.RWMutex
	levels map[domain.StockKey]domain.StockLevel
}

func NewMemoryStockLevels() *MemoryStockLevels {
	return &MemoryStockLevels{levels: make(map[domain.StockKey]domain.StockLevel)}
}

func (s *MemoryStockLevels) Get(_ context.Context, key domain.StockKey) (domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	level, ok := s.levels[key]
	if !ok {
		return domain.StockLevel{Key: key}, nil
	}
	return level, nil
}

func (s *MemoryStockLevels) CompareAndSwap(_ context.Context, expected snowflake.ID, next domain.StockLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.levels[next.Key]
	if current.LastMovementID != expected {
		return fmt.Errorf("%w: %s", domain.ErrStaleVersion, next.Key)
	}
	s.levels[next.Key] = next
	return nil
}

func (s *MemoryStockLevels) ListByProduct(_ context.Context, productID string) ([]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StockLevel
	for key, level := range s.levels {
		if key.ProductID == productID {
			out = append(out, level)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Location < out[j].Key.Location })
	return out, nil
}
