// Package rest implements payment.Gateway over the payment provider's HTTP
// API. It is the single point of contact with the outside payment network.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/payment"
)

var _ payment.Gateway = (*Client)(nil)

// Client talks to a REST payment gateway.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a gateway client for the given base URL and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// authorizationBody is the wire shape of an authorization record.
type authorizationBody struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	AuthorizedAmount decimal.Decimal `json:"authorized_amount"`
	CapturedAmount   decimal.Decimal `json:"captured_amount"`
	RefundedAmount   decimal.Decimal `json:"refunded_amount"`
}

func (b authorizationBody) toDomain() *payment.Authorization {
	return &payment.Authorization{
		ID:               b.ID,
		Status:           payment.AuthStatus(b.Status),
		AuthorizedAmount: b.AuthorizedAmount,
		CapturedAmount:   b.CapturedAmount,
		RefundedAmount:   b.RefundedAmount,
	}
}

// errorBody is the gateway's error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Authorize opens a hold. Any decline or transport error maps to
// payment.ErrAuthorizationFailed so order creation aborts cleanly.
func (c *Client) Authorize(ctx context.Context, req payment.AuthorizeRequest) (*payment.Authorization, error) {
	body := map[string]any{
		"amount":       req.Amount,
		"currency":     req.Currency,
		"method_token": req.MethodToken,
		"description":  req.Description,
		"capture":      false,
	}

	var out authorizationBody
	if err := c.do(ctx, http.MethodPost, "/v1/authorizations", body, &out); err != nil {
		return nil, errors.Wrap(payment.ErrAuthorizationFailed, err.Error())
	}
	return out.toDomain(), nil
}

// Get fetches the current authorization record.
func (c *Client) Get(ctx context.Context, id string) (*payment.Authorization, error) {
	var out authorizationBody
	if err := c.do(ctx, http.MethodGet, "/v1/authorizations/"+id, nil, &out); err != nil {
		return nil, errors.Wrapf(err, "get authorization %s", id)
	}
	return out.toDomain(), nil
}

// Capture charges the held funds, up to the authorized amount.
func (c *Client) Capture(ctx context.Context, id string, amount decimal.Decimal) (*payment.Authorization, error) {
	body := map[string]any{"amount": amount}

	var out authorizationBody
	if err := c.do(ctx, http.MethodPost, "/v1/authorizations/"+id+"/capture", body, &out); err != nil {
		return nil, errors.Wrapf(err, "capture authorization %s", id)
	}
	return out.toDomain(), nil
}

// Refund returns part of the captured amount to the payer.
func (c *Client) Refund(ctx context.Context, id string, amount decimal.Decimal, reason string) (*payment.Authorization, error) {
	body := map[string]any{"amount": amount, "reason": reason}

	var out authorizationBody
	if err := c.do(ctx, http.MethodPost, "/v1/authorizations/"+id+"/refunds", body, &out); err != nil {
		return nil, errors.Wrapf(err, "refund authorization %s", id)
	}
	return out.toDomain(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return errors.Wrap(err, "encode request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "gateway request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e errorBody
		if decodeErr := json.NewDecoder(resp.Body).Decode(&e); decodeErr == nil && e.Message != "" {
			return fmt.Errorf("gateway %s: %s (%s)", resp.Status, e.Message, e.Code)
		}
		return fmt.Errorf("gateway %s", resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}
