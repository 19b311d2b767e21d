package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/order"
	"github.com/xenking/farmstand/internal/domain/pricing"
)

// OrderService is the slice of the order service the handlers need.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	Get(ctx context.Context, orderID string) (*order.Order, error)
	RecordActualWeight(ctx context.Context, orderID, itemID string, weight decimal.Decimal) (*order.Order, error)
	Capture(ctx context.Context, orderID string, amount decimal.Decimal) (*order.Order, error)
	Refund(ctx context.Context, orderID string, amount decimal.Decimal, reason string) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, next order.Status) (*order.Order, error)
	AddTracking(ctx context.Context, orderID, carrier, trackingNumber string) (*order.Order, error)
	PaymentSummary(ctx context.Context, orderID string) (*order.PaymentSummary, error)
}

type addressBody struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone,omitempty"`
}

type cartItemBody struct {
	ProductID       string          `json:"product_id"`
	Name            string          `json:"name"`
	SKU             string          `json:"sku,omitempty"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	PricingType     string          `json:"pricing_type"`
	EstimatedWeight decimal.Decimal `json:"estimated_weight,omitempty"`
}

type placeOrderBody struct {
	CustomerID      string          `json:"customer_id"`
	Items           []cartItemBody  `json:"items"`
	FulfillmentType string          `json:"fulfillment_type"`
	LocationID      string          `json:"location_id,omitempty"`
	ZoneID          string          `json:"zone_id,omitempty"`
	ScheduledDate   time.Time       `json:"scheduled_date"`
	ShippingAddress *addressBody    `json:"shipping_address,omitempty"`
	BillingAddress  *addressBody    `json:"billing_address,omitempty"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	MembershipFee   decimal.Decimal `json:"membership_fee"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	FreeShipping    bool            `json:"free_shipping,omitempty"`
	GiftCardID      string          `json:"gift_card_id,omitempty"`
	GiftCardAmount  decimal.Decimal `json:"gift_card_amount"`
	StoreCredit     decimal.Decimal `json:"store_credit"`
	MethodToken     string          `json:"method_token,omitempty"`
	CustomerNote    string          `json:"customer_note,omitempty"`
	Source          string          `json:"source,omitempty"`
}

func (b *placeOrderBody) toRequest() order.CreateOrderRequest {
	items := make([]order.CartItem, len(b.Items))
	for i, it := range b.Items {
		items[i] = order.CartItem{
			ProductID:       it.ProductID,
			Name:            it.Name,
			SKU:             it.SKU,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			PricingType:     pricing.PricingType(it.PricingType),
			EstimatedWeight: it.EstimatedWeight,
		}
	}

	source := order.Source(b.Source)
	if b.Source == "" {
		source = order.SourceWeb
	}

	return order.CreateOrderRequest{
		CustomerID: b.CustomerID,
		Items:      items,
		Fulfillment: order.Fulfillment{
			Type:          order.FulfillmentType(b.FulfillmentType),
			LocationID:    b.LocationID,
			ZoneID:        b.ZoneID,
			ScheduledDate: b.ScheduledDate,
		},
		ShippingAddress: toAddress(b.ShippingAddress),
		BillingAddress:  toAddress(b.BillingAddress),
		Charges: pricing.Charges{
			ShippingFee:   b.ShippingFee,
			MembershipFee: b.MembershipFee,
			TaxAmount:     b.TaxAmount,
		},
		Instruments: pricing.Instruments{
			CouponCode:        b.CouponCode,
			DiscountAmount:    b.DiscountAmount,
			FreeShipping:      b.FreeShipping,
			GiftCardID:        b.GiftCardID,
			GiftCardAmount:    b.GiftCardAmount,
			StoreCreditAmount: b.StoreCredit,
		},
		MethodToken:  b.MethodToken,
		CustomerNote: b.CustomerNote,
		Source:       source,
	}
}

func toAddress(a *addressBody) *order.Address {
	if a == nil {
		return nil
	}
	return &order.Address{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Phone:      a.Phone,
	}
}

func fromAddress(a *order.Address) *addressBody {
	if a == nil {
		return nil
	}
	return &addressBody{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Phone:      a.Phone,
	}
}

type orderItemResponse struct {
	ID              string           `json:"id"`
	ProductID       string           `json:"product_id"`
	Name            string           `json:"name"`
	SKU             string           `json:"sku,omitempty"`
	Quantity        int              `json:"quantity"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	PricingType     string           `json:"pricing_type"`
	EstimatedWeight decimal.Decimal  `json:"estimated_weight,omitempty"`
	ActualWeight    *decimal.Decimal `json:"actual_weight,omitempty"`
	FinalPrice      *decimal.Decimal `json:"final_price,omitempty"`
	LineTotal       decimal.Decimal  `json:"line_total"`
	Packed          bool             `json:"packed"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	Number          int64               `json:"number"`
	CustomerID      string              `json:"customer_id,omitempty"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	FulfillmentType string              `json:"fulfillment_type"`
	ScheduledDate   time.Time           `json:"scheduled_date"`
	ShippingAddress *addressBody        `json:"shipping_address,omitempty"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	ShippingFee     decimal.Decimal     `json:"shipping_fee"`
	MembershipFee   decimal.Decimal     `json:"membership_fee"`
	TaxAmount       decimal.Decimal     `json:"tax_amount"`
	DiscountAmount  decimal.Decimal     `json:"discount_amount"`
	GiftCardUsed    decimal.Decimal     `json:"gift_card_used"`
	StoreCreditUsed decimal.Decimal     `json:"store_credit_used"`
	Total           decimal.Decimal     `json:"total"`
	Carrier         string              `json:"carrier,omitempty"`
	TrackingNumber  string              `json:"tracking_number,omitempty"`
	Items           []orderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	ShippedAt       *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ID:              it.ID,
			ProductID:       it.ProductID,
			Name:            it.Name,
			SKU:             it.SKU,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			PricingType:     string(it.PricingType),
			EstimatedWeight: it.EstimatedWeight,
			ActualWeight:    it.ActualWeight,
			FinalPrice:      it.FinalPrice,
			LineTotal:       it.LineTotal(),
			Packed:          it.Packed,
		}
	}

	return orderResponse{
		ID:              o.ID,
		Number:          o.Number,
		CustomerID:      o.CustomerID,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		FulfillmentType: string(o.Fulfillment.Type),
		ScheduledDate:   o.Fulfillment.ScheduledDate,
		ShippingAddress: fromAddress(o.ShippingAddress),
		Subtotal:        o.Subtotal,
		ShippingFee:     o.ShippingFee,
		MembershipFee:   o.MembershipFee,
		TaxAmount:       o.TaxAmount,
		DiscountAmount:  o.DiscountAmount,
		GiftCardUsed:    o.GiftCardUsed,
		StoreCreditUsed: o.StoreCreditUsed,
		Total:           o.Total,
		Carrier:         o.Carrier,
		TrackingNumber:  o.TrackingNumber,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
	}
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderBody
	if !decodeBody(w, r, &body) {
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), body.toRequest())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type recordWeightBody struct {
	Weight decimal.Decimal `json:"weight"`
}

func (h *Handler) recordWeight(w http.ResponseWriter, r *http.Request) {
	var body recordWeightBody
	if !decodeBody(w, r, &body) {
		return
	}

	o, err := h.orders.RecordActualWeight(r.Context(), r.PathValue("id"), r.PathValue("itemID"), body.Weight)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type captureBody struct {
	// Amount of zero (or omitted) captures the full order total.
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) capture(w http.ResponseWriter, r *http.Request) {
	var body captureBody
	if !decodeBody(w, r, &body) {
		return
	}

	orderID := r.PathValue("id")
	amount := body.Amount
	if amount.IsZero() {
		o, err := h.orders.Get(r.Context(), orderID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		amount = o.Total
	}

	o, err := h.orders.Capture(r.Context(), orderID, amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type refundBody struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason,omitempty"`
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	var body refundBody
	if !decodeBody(w, r, &body) {
		return
	}

	o, err := h.orders.Refund(r.Context(), r.PathValue("id"), body.Amount, body.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateStatusBody struct {
	Status string `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body updateStatusBody
	if !decodeBody(w, r, &body) {
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), order.Status(body.Status))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type trackingBody struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) addTracking(w http.ResponseWriter, r *http.Request) {
	var body trackingBody
	if !decodeBody(w, r, &body) {
		return
	}

	o, err := h.orders.AddTracking(r.Context(), r.PathValue("id"), body.Carrier, body.TrackingNumber)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type paymentSummaryResponse struct {
	PaymentStatus     string          `json:"payment_status"`
	AuthorizedAmount  decimal.Decimal `json:"authorized_amount"`
	CapturedAmount    decimal.Decimal `json:"captured_amount"`
	RefundedAmount    decimal.Decimal `json:"refunded_amount"`
	RefundableAmount  decimal.Decimal `json:"refundable_amount"`
	OverAuthorization decimal.Decimal `json:"over_authorization"`
}

func (h *Handler) paymentSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orders.PaymentSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentSummaryResponse{
		PaymentStatus:     string(summary.PaymentStatus),
		AuthorizedAmount:  summary.AuthorizedAmount,
		CapturedAmount:    summary.CapturedAmount,
		RefundedAmount:    summary.RefundedAmount,
		RefundableAmount:  summary.RefundableAmount,
		OverAuthorization: summary.OverAuthorization,
	})
}
