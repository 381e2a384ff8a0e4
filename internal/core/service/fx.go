package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/config"
	"github.com/Yendza/controller-backend/internal/observability"
	"github.com/Yendza/controller-backend/internal/port"
)

func NewSnowflakeNode(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.App.NodeID)
}

func provideLedger(repo port.LedgerRepository, cfg config.Config, log *zap.Logger, metrics *observability.Metrics) *LedgerService {
	return NewLedgerService(repo, RetryConfig{
		MaxTries:        cfg.Ledger.Retry.MaxTries,
		InitialInterval: cfg.Ledger.Retry.InitialInterval,
		MaxInterval:     cfg.Ledger.Retry.MaxInterval,
	}, log, metrics)
}

func provideChecker(
	ledger *LedgerService,
	aggregator *StockAggregator,
	reserver port.Reserver,
	catalog port.ProductCatalog,
	cfg config.Config,
	log *zap.Logger,
	metrics *observability.Metrics,
) *ConsistencyChecker {
	return NewConsistencyChecker(ledger, aggregator, reserver, catalog, CheckerConfig{
		Interval:   cfg.Checker.Interval,
		RunTimeout: cfg.Checker.RunTimeout,
	}, log, metrics)
}

func provideCoordinator(
	catalog port.ProductCatalog,
	ledger *LedgerService,
	aggregator *StockAggregator,
	reserver port.Reserver,
	checker *ConsistencyChecker,
	ids *snowflake.Node,
	cfg config.Config,
	log *zap.Logger,
	metrics *observability.Metrics,
) *TransactionCoordinator {
	return NewTransactionCoordinator(catalog, ledger, aggregator, reserver, checker, ids, CoordinatorConfig{
		MaxRetries:      cfg.Coordinator.MaxRetries,
		DefaultCurrency: cfg.App.Currency,
	}, log, metrics)
}

// runChecker rebuilds the projection from the ledger before serving, then keeps reconciling in
// the background.
func runChecker(lc fx.Lifecycle, checker *ConsistencyChecker, log *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			started := time.Now()
			if err := checker.RunOnce(ctx); err != nil {
				cancel()
				close(done)
				return err
			}
			log.Info("stock projection verified against ledger", zap.Duration("elapsed", time.Since(started)))

			go func() {
				defer close(done)
				checker.RunForever(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

var Module = fx.Module("service",
	fx.Provide(
		NewSnowflakeNode,
		provideLedger,
		NewStockAggregator,
		provideChecker,
		provideCoordinator,
	),
	fx.Invoke(runChecker),
)
