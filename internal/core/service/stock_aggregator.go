package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/core/domain"
	"github.com/Yendza/controller-backend/internal/port"
)

// StockAggregator owns the stock level projection. Every mutation goes through an optimistic
// compare-and-swap on the last applied movement id.
type StockAggregator struct {
	repo port.StockLevelRepository
	log  *zap.Logger
	now  func() time.Time
}

func NewStockAggregator(repo port.StockLevelRepository, log *zap.Logger) *StockAggregator {
	return &StockAggregator{
		repo: repo,
		log:  log.Named("stock.aggregator"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (a *StockAggregator) CurrentLevel(ctx context.Context, key domain.StockKey) (domain.StockLevel, error) {
	level, err := a.repo.Get(ctx, key)
	if err != nil {
		return domain.StockLevel{}, fmt.Errorf("get stock level %s: %w", key, err)
	}
	level.Key = key
	return level, nil
}

func (a *StockAggregator) LevelsForProduct(ctx context.Context, productID string) ([]domain.StockLevel, error) {
	levels, err := a.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list stock levels for %s: %w", productID, err)
	}
	return levels, nil
}

// ApplyDelta folds m into key's level if the stored last movement id is expectedLast.
// Re-applying the movement that is already last is a no-op.
func (a *StockAggregator) ApplyDelta(ctx context.Context, key domain.StockKey, m domain.StockMovement, expectedLast snowflake.ID) (domain.StockLevel, error) {
	if m.Key() != key {
		return domain.StockLevel{}, &domain.ValidationError{Field: "movement", Reason: fmt.Sprintf("movement for %s applied to %s", m.Key(), key)}
	}

	current, err := a.CurrentLevel(ctx, key)
	if err != nil {
		return domain.StockLevel{}, err
	}
	if current.LastMovementID == m.ID {
		return current, nil
	}
	if current.LastMovementID != expectedLast {
		return domain.StockLevel{}, fmt.Errorf("%w: %s last applied %s, expected %s",
			domain.ErrStaleVersion, key, current.LastMovementID, expectedLast)
	}

	next := current.Apply(m)
	next.UpdatedAt = a.now()
	if err := a.repo.CompareAndSwap(ctx, expectedLast, next); err != nil {
		return domain.StockLevel{}, fmt.Errorf("apply movement %s to %s: %w", m.ID, key, err)
	}
	return next, nil
}

// Verify fails with domain.ErrStaleVersion if any key moved past the expected movement id.
func (a *StockAggregator) Verify(ctx context.Context, expected map[domain.StockKey]snowflake.ID) error {
	for key, last := range expected {
		current, err := a.CurrentLevel(ctx, key)
		if err != nil {
			return err
		}
		if current.LastMovementID != last {
			return fmt.Errorf("%w: %s changed since it was read", domain.ErrStaleVersion, key)
		}
	}
	return nil
}

// Correct replaces actual with the ledger-derived level, bumping the version past actual's.
func (a *StockAggregator) Correct(ctx context.Context, actual, expected domain.StockLevel) (domain.StockLevel, error) {
	next := expected
	next.Key = actual.Key
	next.Version = actual.Version + 1
	next.UpdatedAt = a.now()
	if err := a.repo.CompareAndSwap(ctx, actual.LastMovementID, next); err != nil {
		return domain.StockLevel{}, fmt.Errorf("correct stock level %s: %w", actual.Key, err)
	}

	a.log.Info("stock level corrected from ledger",
		zap.String("key", actual.Key.String()),
		zap.Int64("from", actual.Quantity),
		zap.Int64("to", next.Quantity),
	)
	return next, nil
}
