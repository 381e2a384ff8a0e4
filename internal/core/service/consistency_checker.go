package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/core/domain"
	"github.com/Yendza/controller-backend/internal/observability"
	"github.com/Yendza/controller-backend/internal/port"
)

// CheckerConfig controls the reconciliation loop.
type CheckerConfig struct {
	Interval   time.Duration
	RunTimeout time.Duration
}

func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		Interval:   5 * time.Minute,
		RunTimeout: time.Minute,
	}
}

func (c CheckerConfig) withDefaults() CheckerConfig {
	defaults := DefaultCheckerConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}

// ConsistencyChecker compares the stock projection with ledger replay and heals drift. The
// ledger always wins.
type ConsistencyChecker struct {
	ledger     *LedgerService
	aggregator *StockAggregator
	reserver   port.Reserver
	catalog    port.ProductCatalog
	cfg        CheckerConfig
	log        *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]struct{}
	wake    chan struct{}
}

func NewConsistencyChecker(
	ledger *LedgerService,
	aggregator *StockAggregator,
	reserver port.Reserver,
	catalog port.ProductCatalog,
	cfg CheckerConfig,
	log *zap.Logger,
	metrics *observability.Metrics,
) *ConsistencyChecker {
	return &ConsistencyChecker{
		ledger:     ledger,
		aggregator: aggregator,
		reserver:   reserver,
		catalog:    catalog,
		cfg:        cfg.withDefaults(),
		log:        log.Named("consistency.checker"),
		metrics:    metrics,
		now:        func() time.Time { return time.Now().UTC() },
		pending:    make(map[string]struct{}),
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue schedules products for reconciliation on the next loop iteration.
func (c *ConsistencyChecker) Enqueue(productIDs ...string) {
	c.mu.Lock()
	for _, id := range productIDs {
		c.pending[id] = struct{}{}
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pending returns the queued products in id order.
func (c *ConsistencyChecker) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reconcile checks every stock key of a product. Drifted keys are corrected to the ledger
// replay and reported with Status ReconcileDriftDetected.
func (c *ConsistencyChecker) Reconcile(ctx context.Context, productID string) ([]domain.Reconciliation, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ConsistencyChecker.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	started := time.Now()
	defer func() { c.metrics.ObserveReconcile(time.Since(started)) }()

	keys, err := c.discoverKeys(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	release, err := c.reserver.Reserve(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}
	defer release()

	expected, err := c.ledger.Replay(ctx, productID)
	if err != nil {
		return nil, err
	}

	results := make([]domain.Reconciliation, 0, len(keys))
	for _, key := range keys {
		actual, err := c.aggregator.CurrentLevel(ctx, key)
		if err != nil {
			return results, err
		}
		want, ok := expected[key]
		if !ok {
			want = domain.StockLevel{Key: key}
		}

		result := domain.Reconciliation{
			Key:       key,
			Status:    domain.ReconcileConsistent,
			Expected:  want.Quantity,
			Actual:    actual.Quantity,
			CheckedAt: c.now(),
		}
		if actual.Quantity != want.Quantity || actual.LastMovementID != want.LastMovementID {
			result.Status = domain.ReconcileDriftDetected
			c.log.Warn("stock drift detected",
				zap.String("key", key.String()),
				zap.Int64("expected", want.Quantity),
				zap.Int64("actual", actual.Quantity),
				zap.String("expected_last_movement", want.LastMovementID.String()),
				zap.String("actual_last_movement", actual.LastMovementID.String()),
			)
			if _, err := c.aggregator.Correct(ctx, actual, want); err != nil {
				return results, err
			}
		}
		c.metrics.RecordReconciliation(string(result.Status))
		results = append(results, result)
	}

	c.mu.Lock()
	delete(c.pending, productID)
	c.mu.Unlock()
	return results, nil
}

// ReconcileAll reconciles every catalog product, every product in the ledger and every queued
// product.
func (c *ConsistencyChecker) ReconcileAll(ctx context.Context) ([]domain.Reconciliation, error) {
	products, err := c.catalog.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	recorded, err := c.ledger.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledger products: %w", err)
	}
	ids = mergeIDs(mergeIDs(ids, recorded), c.Pending())

	var all []domain.Reconciliation
	for _, id := range ids {
		results, err := c.Reconcile(ctx, id)
		if err != nil {
			return all, fmt.Errorf("reconcile %s: %w", id, err)
		}
		all = append(all, results...)
	}
	return all, nil
}

// RunForever reconciles queued products as they arrive and the whole catalog every interval.
func (c *ConsistencyChecker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			c.runPending(ctx)
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				c.log.Warn("reconciliation run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce reconciles the whole catalog within the configured run timeout.
func (c *ConsistencyChecker) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, c.cfg.RunTimeout)
	defer cancel()

	results, err := c.ReconcileAll(ctx)
	c.logSummary(results)
	return err
}

func (c *ConsistencyChecker) runPending(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, c.cfg.RunTimeout)
	defer cancel()

	var results []domain.Reconciliation
	for _, id := range c.Pending() {
		r, err := c.Reconcile(ctx, id)
		results = append(results, r...)
		if err != nil {
			c.log.Warn("queued reconciliation failed", zap.String("product_id", id), zap.Error(err))
		}
	}
	c.logSummary(results)
}

func (c *ConsistencyChecker) logSummary(results []domain.Reconciliation) {
	drifted := 0
	for _, r := range results {
		if r.Drift() {
			drifted++
		}
	}
	c.log.Info("reconciliation finished", zap.Int("keys", len(results)), zap.Int("drifted", drifted))
}

func (c *ConsistencyChecker) discoverKeys(ctx context.Context, productID string) ([]domain.StockKey, error) {
	replayed, err := c.ledger.Replay(ctx, productID)
	if err != nil {
		return nil, err
	}
	stored, err := c.aggregator.LevelsForProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	seen := make(map[domain.StockKey]struct{}, len(replayed)+len(stored))
	for key := range replayed {
		seen[key] = struct{}{}
	}
	for _, level := range stored {
		seen[level.Key] = struct{}{}
	}
	keys := make([]domain.StockKey, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func mergeIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range append(append([]string{}, a...), b...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
