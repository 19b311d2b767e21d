package api

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/discount"
)

// CouponValidator computes the offer a coupon code would make for a cart.
type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*discount.CouponOffer, error)
}

type validateCouponBody struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type couponOfferResponse struct {
	Code         string          `json:"code"`
	Amount       decimal.Decimal `json:"amount"`
	FreeShipping bool            `json:"free_shipping"`
}

// validateCoupon lets the storefront check a code before checkout. It never
// consumes a use; redemption happens when the order is created.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var body validateCouponBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Code == "" {
		writeError(w, http.StatusBadRequest, "coupon code required")
		return
	}

	offer, err := h.coupons.Validate(r.Context(), body.Code, body.Subtotal)
	if err != nil {
		switch {
		case errors.Is(err, discount.ErrInvalidCoupon):
			writeError(w, http.StatusUnprocessableEntity, "invalid coupon code")
		case errors.Is(err, discount.ErrCouponUsageLimitReached):
			writeError(w, http.StatusUnprocessableEntity, "coupon usage limit reached")
		default:
			logHandlerError(r, "Coupon validation error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, couponOfferResponse{
		Code:         offer.Code,
		Amount:       offer.Amount,
		FreeShipping: offer.FreeShipping,
	})
}
