// Package subscription drives recurring orders: due templates are turned
// into carts at current catalog prices and pushed through the same creation
// pipeline as one-off checkouts.
package subscription

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/order"
	"github.com/xenking/farmstand/internal/domain/pricing"
)

// Frequency is how often a subscription recurs.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// ErrUnknownFrequency is returned for a template with an unsupported
// frequency value.
var ErrUnknownFrequency = errors.New("unknown subscription frequency")

// TemplateItem is a product/quantity pair saved on the template. Prices are
// not stored: each run uses the catalog's current prices.
type TemplateItem struct {
	ProductID string
	Quantity  int
}

// Template is a saved recurring order. NextOrderDate advances only after a
// successful order creation, always computed from the previous scheduled
// date so late batch runs do not drift the schedule.
type Template struct {
	ID              string
	CustomerID      string
	Frequency       Frequency
	NextOrderDate   time.Time
	Items           []TemplateItem
	Fulfillment     order.Fulfillment
	ShippingAddress *order.Address
	MethodToken     string
}

// Repository provides due-template listing and schedule advancement.
type Repository interface {
	// ListDue returns templates whose NextOrderDate is on or before now.
	ListDue(ctx context.Context, now time.Time) ([]Template, error)
	// AdvanceNextDate moves the template's NextOrderDate forward.
	AdvanceNextDate(ctx context.Context, templateID string, next time.Time) error
}

// CatalogProduct is the current catalog view of a product needed to build a
// cart line.
type CatalogProduct struct {
	ID              string
	Name            string
	SKU             string
	Price           decimal.Decimal
	PricingType     pricing.PricingType
	EstimatedWeight decimal.Decimal
}

// Catalog resolves current product data for template items.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []string) ([]CatalogProduct, error)
}

// NextDate returns the scheduled date one frequency interval after previous.
func NextDate(previous time.Time, freq Frequency) (time.Time, error) {
	switch freq {
	case FrequencyWeekly:
		return previous.AddDate(0, 0, 7), nil
	case FrequencyBiweekly:
		return previous.AddDate(0, 0, 14), nil
	case FrequencyMonthly:
		return previous.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, errors.Wrapf(ErrUnknownFrequency, "%q", freq)
	}
}
