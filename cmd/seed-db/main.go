// Command seed-db loads development fixtures: farm products with stock,
// coupons, gift cards, store credit, and a sample subscription.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/farmstand/internal/repository"
)

type seedProduct struct {
	ID              string
	Name            string
	SKU             string
	Price           decimal.Decimal
	PricingType     string
	EstimatedWeight decimal.Decimal
	TrackInventory  bool
	AllowBackorder  bool
	StockQuantity   int
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// The seed groups touch disjoint tables, so they run concurrently. The
	// subscription references seeded products but only by ID in JSONB, with
	// no foreign key, so ordering does not matter.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return errors.Wrap(seedProducts(gctx, pool), "seed products") })
	g.Go(func() error { return errors.Wrap(seedCoupons(gctx, pool), "seed coupons") })
	g.Go(func() error { return errors.Wrap(seedInstruments(gctx, pool), "seed instruments") })
	g.Go(func() error { return errors.Wrap(seedSubscription(gctx, pool), "seed subscription") })
	return g.Wait()
}

const upsertProductSQL = `INSERT INTO products (id, name, sku, price, pricing_type,
	estimated_weight, track_inventory, allow_backorder, stock_quantity)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, sku = EXCLUDED.sku, price = EXCLUDED.price,
	pricing_type = EXCLUDED.pricing_type, estimated_weight = EXCLUDED.estimated_weight,
	track_inventory = EXCLUDED.track_inventory, allow_backorder = EXCLUDED.allow_backorder,
	stock_quantity = EXCLUDED.stock_quantity`

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	products := []seedProduct{
		{ID: "honey-wildflower", Name: "Wildflower Honey", SKU: "HNY-01", Price: decimal.RequireFromString("12.00"), PricingType: "fixed", TrackInventory: true, StockQuantity: 40},
		{ID: "eggs-dozen", Name: "Pasture Eggs (dozen)", SKU: "EGG-12", Price: decimal.RequireFromString("7.50"), PricingType: "fixed", TrackInventory: true, StockQuantity: 60},
		{ID: "chicken-whole", Name: "Whole Chicken", SKU: "CHK-01", Price: decimal.RequireFromString("4.50"), PricingType: "weight", EstimatedWeight: decimal.RequireFromString("4.0"), TrackInventory: true, StockQuantity: 12},
		{ID: "beef-brisket", Name: "Beef Brisket", SKU: "BEF-03", Price: decimal.RequireFromString("9.25"), PricingType: "weight", EstimatedWeight: decimal.RequireFromString("3.5"), TrackInventory: true, StockQuantity: 8},
		{ID: "jam-strawberry", Name: "Strawberry Jam", SKU: "JAM-02", Price: decimal.RequireFromString("8.00"), PricingType: "fixed", TrackInventory: false},
		{ID: "csa-veggie-box", Name: "Seasonal Veggie Box", SKU: "CSA-01", Price: decimal.RequireFromString("35.00"), PricingType: "fixed", TrackInventory: true, AllowBackorder: true, StockQuantity: 0},
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.SKU, p.Price, p.PricingType,
			p.EstimatedWeight, p.TrackInventory, p.AllowBackorder, p.StockQuantity,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_subtotal, free_shipping, max_uses, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (code) DO UPDATE SET
	discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
	min_subtotal = EXCLUDED.min_subtotal, free_shipping = EXCLUDED.free_shipping,
	max_uses = EXCLUDED.max_uses, active = EXCLUDED.active`

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding coupons")

	type coupon struct {
		Code         string
		DiscountType string
		Value        decimal.Decimal
		MinSubtotal  decimal.Decimal
		FreeShipping bool
		MaxUses      int
	}
	coupons := []coupon{
		{Code: "HARVEST10", DiscountType: "fixed", Value: decimal.RequireFromString("10.00"), MinSubtotal: decimal.RequireFromString("50.00")},
		{Code: "FREESHIP", DiscountType: "fixed", Value: decimal.Zero, FreeShipping: true, MaxUses: 500},
	}

	for _, c := range coupons {
		_, err := pool.Exec(ctx, upsertCouponSQL,
			c.Code, c.DiscountType, c.Value, c.MinSubtotal, c.FreeShipping, c.MaxUses, true,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code))
	}

	return nil
}

const (
	upsertGiftCardSQL = `INSERT INTO gift_cards (id, code, balance)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance`

	upsertStoreCreditSQL = `INSERT INTO store_credits (customer_id, balance)
	VALUES ($1, $2)
	ON CONFLICT (customer_id) DO UPDATE SET balance = EXCLUDED.balance`
)

func seedInstruments(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding gift cards and store credit")

	_, err := pool.Exec(ctx, upsertGiftCardSQL, "gc-demo", "FARM-GIFT-100", decimal.RequireFromString("100.00"))
	if err != nil {
		return errors.Wrap(err, "upsert gift card")
	}

	_, err = pool.Exec(ctx, upsertStoreCreditSQL, "cust-demo", decimal.RequireFromString("25.00"))
	if err != nil {
		return errors.Wrap(err, "upsert store credit")
	}

	return nil
}

const upsertSubscriptionSQL = `INSERT INTO subscriptions (id, customer_id, frequency,
	next_order_date, items, fulfillment_type, location_id, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
ON CONFLICT (id) DO UPDATE SET
	frequency = EXCLUDED.frequency, next_order_date = EXCLUDED.next_order_date,
	items = EXCLUDED.items`

func seedSubscription(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding sample subscription")

	items, err := json.Marshal([]map[string]any{
		{"ProductID": "csa-veggie-box", "Quantity": 1},
		{"ProductID": "eggs-dozen", "Quantity": 2},
	})
	if err != nil {
		return errors.Wrap(err, "marshal subscription items")
	}

	nextDate := time.Now().AddDate(0, 0, 7).Truncate(24 * time.Hour)
	_, err = pool.Exec(ctx, upsertSubscriptionSQL,
		"sub-demo", "cust-demo", "weekly", nextDate, items, "pickup", "farm-stand-1",
	)
	if err != nil {
		return errors.Wrap(err, "upsert subscription")
	}

	return nil
}
