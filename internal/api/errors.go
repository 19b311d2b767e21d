package api

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/farmstand/internal/domain/inventory"
	"github.com/xenking/farmstand/internal/domain/order"
	"github.com/xenking/farmstand/internal/domain/payment"
)

// respondError maps domain errors to HTTP statuses. Unrecognized errors are
// logged and answered with a generic 500 so internals never leak.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr  *order.ValidationError
		quantityErr    *order.InvalidQuantityError
		transitionErr  *order.InvalidTransitionError
		stockErr       *inventory.InsufficientStockError
		notFoundErr    *inventory.ProductNotFoundError
		overCaptureErr *payment.CaptureExceedsAuthorizedError
	)

	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &quantityErr):
		writeError(w, http.StatusUnprocessableEntity, quantityErr.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusUnprocessableEntity, notFoundErr.Error())
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, stockErr.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient stock")
	case errors.Is(err, payment.ErrAuthorizationFailed):
		writeError(w, http.StatusPaymentRequired, "payment authorization failed")
	case errors.As(err, &overCaptureErr):
		writeError(w, http.StatusConflict, overCaptureErr.Error())
	case errors.Is(err, payment.ErrCaptureNotAllowed),
		errors.Is(err, payment.ErrRefundNotAllowed),
		errors.Is(err, payment.ErrRefundExceedsAvailable),
		errors.Is(err, order.ErrWeightAlreadyRecorded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrNotWeightPriced):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, transitionErr.Error())
	default:
		logHandlerError(r, "Unhandled error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
