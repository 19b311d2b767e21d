package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/farmstand/internal/domain/discount"
	"github.com/xenking/farmstand/internal/domain/inventory"
	"github.com/xenking/farmstand/internal/domain/order"
	"github.com/xenking/farmstand/internal/domain/payment"
	"github.com/xenking/farmstand/internal/domain/subscription"
	"github.com/xenking/farmstand/internal/events"
	"github.com/xenking/farmstand/internal/gateway/memory"
	"github.com/xenking/farmstand/internal/gateway/rest"
	"github.com/xenking/farmstand/internal/repository"
)

// RunSubscriptions wires the recurring-order batch and processes every due
// template once. It shares the creation pipeline with the API server, so
// recurring orders get the same inventory, pricing, and payment treatment.
func RunSubscriptions(ctx context.Context, cfg *Config) (created, failed int, err error) {
	lg, err := zap.NewProduction()
	if err != nil {
		return 0, 0, errors.Wrap(err, "create logger")
	}
	defer func() { _ = lg.Sync() }()

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return 0, 0, errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return 0, 0, errors.Wrap(err, "run migrations")
	}

	var gw payment.Gateway
	if cfg.Gateway.URL != "" {
		gw = rest.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey)
	} else {
		lg.Warn("No gateway URL configured, using in-memory gateway")
		gw = memory.New()
	}

	publisher := events.NewPublisher(lg.Named("events"), cfg.Events.Buffer)
	publisher.Start(ctx)
	defer publisher.Stop()

	orderRepo := repository.NewOrderRepository(pool)
	guard := inventory.NewGuard(repository.NewInventoryRepository(pool))
	ledger := discount.NewLedger(
		repository.NewGiftCardRepository(pool),
		repository.NewStoreCreditRepository(pool),
		repository.NewCouponRepository(pool),
	)
	orderService := order.NewService(orderRepo, guard, gw, ledger,
		repository.NewRefundRepository(pool), publisher, cfg.Currency)

	runner := subscription.NewRunner(
		repository.NewSubscriptionRepository(pool),
		repository.NewProductRepository(pool),
		orderService,
		lg.Named("subscriptions"),
	)
	return runner.RunOnce(ctx)
}
