package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/core/domain"
	"github.com/Yendza/controller-backend/internal/observability"
	"github.com/Yendza/controller-backend/internal/port"
)

const tracerName = "github.com/Yendza/controller-backend/internal/core/service"

// ReconcileQueue accepts products whose projection needs repair.
type ReconcileQueue interface {
	Enqueue(productIDs ...string)
}

type CoordinatorConfig struct {
	MaxRetries      int
	DefaultCurrency string
}

func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{MaxRetries: 5}
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultCoordinatorConfig().MaxRetries
	}
	return c
}

// TransactionCoordinator validates business operations and applies them as one unit to the
// ledger and the stock projection.
type TransactionCoordinator struct {
	catalog    port.ProductCatalog
	ledger     *LedgerService
	aggregator *StockAggregator
	reserver   port.Reserver
	queue      ReconcileQueue
	ids        *snowflake.Node
	cfg        CoordinatorConfig
	log        *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewTransactionCoordinator(
	catalog port.ProductCatalog,
	ledger *LedgerService,
	aggregator *StockAggregator,
	reserver port.Reserver,
	queue ReconcileQueue,
	ids *snowflake.Node,
	cfg CoordinatorConfig,
	log *zap.Logger,
	metrics *observability.Metrics,
) *TransactionCoordinator {
	return &TransactionCoordinator{
		catalog:    catalog,
		ledger:     ledger,
		aggregator: aggregator,
		reserver:   reserver,
		queue:      queue,
		ids:        ids,
		cfg:        cfg.withDefaults(),
		log:        log.Named("transaction.coordinator"),
		metrics:    metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit commits req or returns a rejected transaction with one of domain.ErrValidation,
// domain.ErrInsufficientStock, domain.ErrConflict or domain.ErrStorageFailure. Resubmitting a
// committed transaction id returns the original transaction.
func (c *TransactionCoordinator) Submit(ctx context.Context, req domain.Request) (domain.Transaction, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "TransactionCoordinator.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", req.TransactionID),
		attribute.String("transaction.kind", string(req.Kind)),
	)

	started := time.Now()
	txn, err := c.submit(ctx, req)
	c.metrics.RecordSubmission(string(req.Kind), outcome(err), time.Since(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
		c.log.Debug("transaction rejected",
			zap.String("transaction_id", req.TransactionID),
			zap.String("kind", string(req.Kind)),
			zap.Error(err),
		)
	}
	return txn, err
}

func (c *TransactionCoordinator) submit(ctx context.Context, req domain.Request) (domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return rejected(req), err
	}

	// A committed id replays even if the catalog has since dropped one of its products.
	existing, err := c.ledger.ReadTransaction(ctx, req.TransactionID)
	switch {
	case err == nil:
		c.log.Debug("idempotent resubmission", zap.String("transaction_id", existing.ID))
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return rejected(req), err
	}

	products, err := c.lookupProducts(ctx, req)
	if err != nil {
		return rejected(req), err
	}

	draft := c.draft(req)
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		committed, err := c.attempt(ctx, draft, products)
		if errors.Is(err, domain.ErrStaleVersion) {
			c.metrics.RecordStaleRetry()
			c.log.Debug("stale stock read, revalidating",
				zap.String("transaction_id", draft.ID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			return rejectedTxn(draft), err
		}
		return committed, nil
	}
	return rejectedTxn(draft), fmt.Errorf("%w: transaction %s lost %d attempts to concurrent writers",
		domain.ErrConflict, draft.ID, c.cfg.MaxRetries)
}

func (c *TransactionCoordinator) lookupProducts(ctx context.Context, req domain.Request) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product)
	for _, id := range req.ProductIDs() {
		p, err := c.catalog.Product(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.ValidationError{
				Field:  "product_id",
				Reason: fmt.Sprintf("unknown product %q", id),
				Err:    domain.ErrUnknownProduct,
			}
		}
		if err != nil {
			return nil, fmt.Errorf("lookup product %s: %w", id, err)
		}
		products[id] = p
	}
	return products, nil
}

func (c *TransactionCoordinator) draft(req domain.Request) domain.Transaction {
	occurredAt := req.OccurredAt.UTC()
	if req.OccurredAt.IsZero() {
		occurredAt = c.now()
	}
	currency := req.Currency
	if currency == "" && req.Kind.Monetary() {
		currency = c.cfg.DefaultCurrency
	}

	movements := req.Movements()
	for i := range movements {
		movements[i].ID = c.ids.Generate()
		movements[i].OccurredAt = occurredAt
	}

	return domain.Transaction{
		ID:         req.TransactionID,
		Kind:       req.Kind,
		Status:     domain.TransactionStatusPending,
		Amount:     req.Amount,
		Currency:   currency,
		Reference:  req.Reference,
		Movements:  movements,
		OccurredAt: occurredAt,
	}
}

// attempt runs one reserve-validate-append-apply cycle. Before the ledger append it has no side
// effects and honours ctx cancellation; from the append on it runs to completion.
func (c *TransactionCoordinator) attempt(ctx context.Context, draft domain.Transaction, products map[string]domain.Product) (domain.Transaction, error) {
	keys := draft.Keys()

	release, err := c.reserver.Reserve(ctx, keys)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("reserve stock: %w", err)
	}
	defer release()

	observed := make(map[domain.StockKey]snowflake.ID, len(keys))
	levels := make(map[domain.StockKey]domain.StockLevel, len(keys))
	for _, key := range keys {
		level, err := c.aggregator.CurrentLevel(ctx, key)
		if err != nil {
			return domain.Transaction{}, err
		}
		levels[key] = level
		observed[key] = level.LastMovementID
	}

	net := draft.NetDeltas()
	for _, key := range keys {
		delta := net[key]
		available := levels[key].Quantity
		next, err := domain.AddQuantity(available, delta)
		if err != nil {
			return domain.Transaction{}, err
		}
		if delta >= 0 || products[key.ProductID].AllowBackorder {
			continue
		}
		if next < 0 {
			return domain.Transaction{}, &domain.InsufficientStockError{Key: key, Available: available, Requested: -delta}
		}
	}

	// A lock that expired while we validated lets another process in; catch it before appending.
	if err := c.aggregator.Verify(ctx, observed); err != nil {
		return domain.Transaction{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}

	commitCtx := context.WithoutCancel(ctx)
	draft.Status = domain.TransactionStatusCommitted
	draft.CommittedAt = c.now()
	committed, err := c.ledger.Append(commitCtx, draft)
	if err != nil {
		return domain.Transaction{}, err
	}

	c.apply(commitCtx, committed, observed)
	return committed, nil
}

// apply projects committed movements. Failures leave the ledger untouched and queue the product
// for reconciliation.
func (c *TransactionCoordinator) apply(ctx context.Context, txn domain.Transaction, last map[domain.StockKey]snowflake.ID) {
	broken := make(map[domain.StockKey]bool)
	for _, m := range txn.Movements {
		key := m.Key()
		if broken[key] {
			continue
		}
		level, err := c.aggregator.ApplyDelta(ctx, key, m, last[key])
		if err != nil {
			broken[key] = true
			c.metrics.RecordApplyFailure()
			c.log.Error("committed movement not applied to stock level, queued for reconciliation",
				zap.String("transaction_id", txn.ID),
				zap.String("movement_id", m.ID.String()),
				zap.String("key", key.String()),
				zap.Error(err),
			)
			if c.queue != nil {
				c.queue.Enqueue(key.ProductID)
			}
			continue
		}
		last[key] = level.LastMovementID
	}
}

func rejected(req domain.Request) domain.Transaction {
	return domain.Transaction{
		ID:         req.TransactionID,
		Kind:       req.Kind,
		Status:     domain.TransactionStatusRejected,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Reference:  req.Reference,
		OccurredAt: req.OccurredAt,
	}
}

func rejectedTxn(draft domain.Transaction) domain.Transaction {
	draft.Status = domain.TransactionStatusRejected
	draft.CommittedAt = time.Time{}
	return draft
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrStorageFailure):
		return "storage_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// CurrentLevels reads keys under reservation, so a multi-movement transaction is observed either
// fully applied or not at all.
func (c *TransactionCoordinator) CurrentLevels(ctx context.Context, keys ...domain.StockKey) ([]domain.StockLevel, error) {
	release, err := c.reserver.Reserve(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}
	defer release()

	levels := make([]domain.StockLevel, 0, len(keys))
	for _, key := range keys {
		level, err := c.aggregator.CurrentLevel(ctx, key)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}
