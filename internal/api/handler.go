// Package api exposes the order pipeline over HTTP with JSON bodies.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Handler serves the order endpoints, delegating all business logic to the
// order service.
type Handler struct {
	orders  OrderService
	coupons CouponValidator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders OrderService, coupons CouponValidator) *Handler {
	return &Handler{orders: orders, coupons: coupons}
}

// Register attaches the API routes to mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("GET /api/orders/{id}/payment", h.paymentSummary)
	mux.HandleFunc("POST /api/orders/{id}/items/{itemID}/weight", h.recordWeight)
	mux.HandleFunc("POST /api/orders/{id}/capture", h.capture)
	mux.HandleFunc("POST /api/orders/{id}/refund", h.refund)
	mux.HandleFunc("POST /api/orders/{id}/status", h.updateStatus)
	mux.HandleFunc("POST /api/orders/{id}/tracking", h.addTracking)
	mux.HandleFunc("POST /api/coupons/validate", h.validateCoupon)
}

// errorResponse is the JSON body for all non-2xx responses.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func logHandlerError(r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
}
