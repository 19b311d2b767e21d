// Package app wires the application together and runs the HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/farmstand/internal/api"
	"github.com/xenking/farmstand/internal/domain/discount"
	"github.com/xenking/farmstand/internal/domain/inventory"
	"github.com/xenking/farmstand/internal/domain/order"
	"github.com/xenking/farmstand/internal/domain/payment"
	"github.com/xenking/farmstand/internal/events"
	"github.com/xenking/farmstand/internal/gateway/memory"
	"github.com/xenking/farmstand/internal/gateway/rest"
	"github.com/xenking/farmstand/internal/repository"
	"github.com/xenking/farmstand/pkg/health"
	"github.com/xenking/farmstand/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	orderRepo := repository.NewOrderRepository(pool)
	inventoryRepo := repository.NewInventoryRepository(pool)
	giftCardRepo := repository.NewGiftCardRepository(pool)
	storeCreditRepo := repository.NewStoreCreditRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	refundRepo := repository.NewRefundRepository(pool)

	// Payment gateway: external REST client, or in-memory for development.
	var gw payment.Gateway
	if cfg.Gateway.URL != "" {
		gw = rest.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey)
	} else {
		lg.Warn("No gateway URL configured, using in-memory gateway")
		gw = memory.New()
	}

	// Async event publisher.
	var subscribers []events.Subscriber
	if cfg.Events.WebhookURL != "" {
		subscribers = append(subscribers, events.NewWebhookSubscriber("orders", cfg.Events.WebhookURL))
	}
	publisher := events.NewPublisher(lg.Named("events"), cfg.Events.Buffer, subscribers...)
	publisher.Start(ctx)
	defer publisher.Stop()

	// Domain services.
	guard := inventory.NewGuard(inventoryRepo)
	ledger := discount.NewLedger(giftCardRepo, storeCreditRepo, couponRepo)
	validator := discount.NewValidator(couponRepo)
	orderService := order.NewService(orderRepo, guard, gw, ledger, refundRepo, publisher, cfg.Currency)

	// HTTP routes: health endpoints + API.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	api.NewHandler(orderService, validator).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
