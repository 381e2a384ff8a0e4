package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/core/domain"
	"github.com/Yendza/controller-backend/internal/observability"
	"github.com/Yendza/controller-backend/internal/port"
)

const replayPageSize = 1000

// RetryConfig bounds the backoff applied to transient ledger storage failures.
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxTries:        4,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	defaults := DefaultRetryConfig()
	if c.MaxTries == 0 {
		c.MaxTries = defaults.MaxTries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = defaults.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = defaults.MaxInterval
	}
	return c
}

// LedgerService is the storage boundary of the ledger. Transient failures are retried with
// backoff here and surface as domain.ErrStorageFailure once retries are exhausted.
type LedgerService struct {
	repo    port.LedgerRepository
	retry   RetryConfig
	log     *zap.Logger
	metrics *observability.Metrics
}

func NewLedgerService(repo port.LedgerRepository, retry RetryConfig, log *zap.Logger, metrics *observability.Metrics) *LedgerService {
	return &LedgerService{
		repo:    repo,
		retry:   retry.withDefaults(),
		log:     log.Named("ledger.service"),
		metrics: metrics,
	}
}

// Append durably records a committed transaction. Callers must not cancel ctx once Append has
// started; pass context.WithoutCancel.
func (s *LedgerService) Append(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	if len(txn.Movements) == 0 {
		return domain.Transaction{}, &domain.ValidationError{Field: "movements", Reason: "transaction has no movements"}
	}

	attempts := 0
	committed, err := withRetry(ctx, s, "append", func() (domain.Transaction, error) {
		attempts++
		out, err := s.repo.Append(ctx, txn)
		if err == nil || !errors.Is(err, domain.ErrConflict) || attempts == 1 {
			return out, err
		}
		// An earlier attempt may have committed before its acknowledgement was lost.
		existing, getErr := s.repo.GetTransaction(ctx, txn.ID)
		if getErr != nil {
			return out, err
		}
		if len(existing.Movements) > 0 && existing.Movements[0].ID == txn.Movements[0].ID {
			return existing, nil
		}
		return out, err
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.log.Debug("transaction appended",
		zap.String("transaction_id", committed.ID),
		zap.String("kind", string(committed.Kind)),
		zap.Int("movements", len(committed.Movements)),
	)
	return committed, nil
}

// ReadTransaction returns domain.ErrNotFound for unknown ids.
func (s *LedgerService) ReadTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return withRetry(ctx, s, "read_transaction", func() (domain.Transaction, error) {
		return s.repo.GetTransaction(ctx, id)
	})
}

// ReadMovements returns movements with sequence > after, ascending. limit <= 0 reads to the end.
func (s *LedgerService) ReadMovements(ctx context.Context, productID string, after int64, limit int) ([]domain.StockMovement, error) {
	if after < 0 {
		after = 0
	}
	return withRetry(ctx, s, "read_movements", func() ([]domain.StockMovement, error) {
		return s.repo.ListMovements(ctx, productID, after, limit)
	})
}

// Products lists every product id the ledger holds movements for.
func (s *LedgerService) Products(ctx context.Context) ([]string, error) {
	return withRetry(ctx, s, "list_products", func() ([]string, error) {
		return s.repo.ListProducts(ctx)
	})
}

// Replay folds every committed movement of a product in sequence order, one level per key.
func (s *LedgerService) Replay(ctx context.Context, productID string) (map[domain.StockKey]domain.StockLevel, error) {
	levels := make(map[domain.StockKey]domain.StockLevel)
	err := s.scan(ctx, productID, func(m domain.StockMovement) {
		key := m.Key()
		level, ok := levels[key]
		if !ok {
			level = domain.StockLevel{Key: key}
		}
		level = level.Apply(m)
		level.UpdatedAt = m.OccurredAt
		levels[key] = level
	})
	if err != nil {
		return nil, err
	}
	return levels, nil
}

// LevelAt reconstructs the quantity of key from movements of transactions that occurred at or
// before at.
func (s *LedgerService) LevelAt(ctx context.Context, key domain.StockKey, at time.Time) (int64, error) {
	var quantity int64
	err := s.scan(ctx, key.ProductID, func(m domain.StockMovement) {
		if m.Key() != key || m.OccurredAt.After(at) {
			return
		}
		quantity += m.Delta
	})
	return quantity, err
}

func (s *LedgerService) scan(ctx context.Context, productID string, fn func(domain.StockMovement)) error {
	var after int64
	for {
		page, err := s.ReadMovements(ctx, productID, after, replayPageSize)
		if err != nil {
			return err
		}
		for _, m := range page {
			if m.Sequence != after+1 {
				return fmt.Errorf("%w: product %s: expected sequence %d, got %d",
					domain.ErrStorageFailure, productID, after+1, m.Sequence)
			}
			fn(m)
			after = m.Sequence
		}
		if len(page) < replayPageSize {
			return nil
		}
	}
}

func withRetry[T any](ctx context.Context, s *LedgerService, op string, fn func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retry.InitialInterval
	policy.MaxInterval = s.retry.MaxInterval

	res, err := backoff.Retry[T](ctx,
		func() (T, error) {
			v, err := fn()
			if err != nil && !domain.IsRetryable(err) {
				return v, backoff.Permanent(err)
			}
			return v, err
		},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.retry.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.metrics.RecordStorageRetry(op)
			s.log.Warn("ledger storage failure, retrying",
				zap.String("op", op),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if err == nil || !domain.IsRetryable(err) {
		return res, err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return res, err
	}
	if errors.Is(err, domain.ErrStorageFailure) {
		return res, err
	}
	s.log.Error("ledger storage unavailable", zap.String("op", op), zap.Error(err))
	return res, fmt.Errorf("%w: %s: %w", domain.ErrStorageFailure, op, err)
}
