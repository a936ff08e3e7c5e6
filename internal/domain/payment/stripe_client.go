// internal/domain/payment/stripe_client.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/pkg/errs"
)

// StripeClient is the typed HTTP client for the payment gateway. Every
// operation takes and returns explicit structs; gateway failures are
// translated into the uniform error taxonomy before leaving this
// package. The client never retries; retry policy belongs to callers.
type StripeClient struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewStripeClient creates a new gateway client
func NewStripeClient(cfg *config.Config) *StripeClient {
	return &StripeClient{
		secretKey: cfg.External.Stripe.SecretKey,
		baseURL:   cfg.External.Stripe.APIBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SessionLineItem is one cart line presented to the gateway checkout UI
type SessionLineItem struct {
	Name       string
	UnitAmount int64 // In minor currency units
	Quantity   int
}

// SessionMetadata correlates the gateway session back to our cart
type SessionMetadata struct {
	CartID    uint
	SessionID string
	ItemCount int
	UserID    *uint
}

// CreateSessionRequest represents a checkout-session creation call.
// DiscountAmount, when set, is passed as a one-off amount-off coupon so
// the gateway total matches the locally computed total.
type CreateSessionRequest struct {
	LineItems      []SessionLineItem
	Metadata       SessionMetadata
	Currency       string
	SuccessURL     string
	CancelURL      string
	DiscountAmount int64
}

// CheckoutSession is the gateway's representation of an in-progress payment
type CheckoutSession struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent"`
	Status          string `json:"status"`
	AmountTotal     int64  `json:"amount_total"`
}

// CreateRefundRequest represents a refund call against a payment intent
type CreateRefundRequest struct {
	PaymentIntentID string
	Amount          int64 // 0 = full refund
	Reason          string
}

// RefundResponse is the gateway's refund record
type RefundResponse struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"payment_intent"`
	Amount          int64  `json:"amount"`
	Status          string `json:"status"`
}

// CreateCheckoutSession creates a hosted checkout session for the cart
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req *CreateSessionRequest) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)

	for i, item := range req.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", req.Currency)
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitAmount, 10))
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
	}

	if req.DiscountAmount > 0 {
		form.Set("discounts[0][coupon_data][amount_off]", strconv.FormatInt(req.DiscountAmount, 10))
		form.Set("discounts[0][coupon_data][currency]", req.Currency)
	}

	form.Set("metadata[cart_id]", strconv.FormatUint(uint64(req.Metadata.CartID), 10))
	form.Set("metadata[session_id]", req.Metadata.SessionID)
	form.Set("metadata[item_count]", strconv.Itoa(req.Metadata.ItemCount))
	if req.Metadata.UserID != nil {
		form.Set("metadata[user_id]", strconv.FormatUint(uint64(*req.Metadata.UserID), 10))
	}

	var session CheckoutSession
	if err := c.call(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RetrieveSession fetches the current state of a checkout session
func (c *StripeClient) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.call(ctx, http.MethodGet, "/checkout/sessions/"+sessionID, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CancelSession expires an open checkout session
func (c *StripeClient) CancelSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.call(ctx, http.MethodPost, "/checkout/sessions/"+sessionID+"/expire", url.Values{}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateRefund refunds a completed payment, partially when Amount is set
func (c *StripeClient) CreateRefund(ctx context.Context, req *CreateRefundRequest) (*RefundResponse, error) {
	form := url.Values{}
	form.Set("payment_intent", req.PaymentIntentID)
	if req.Amount > 0 {
		form.Set("amount", strconv.FormatInt(req.Amount, 10))
	}
	if req.Reason != "" {
		form.Set("reason", req.Reason)
	}

	var refund RefundResponse
	if err := c.call(ctx, http.MethodPost, "/refunds", form, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

// gatewayErrorBody is the gateway's error envelope
type gatewayErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) call(ctx context.Context, method, endpoint string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Gateway(errs.GatewayConnection, "gateway unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Gateway(errs.GatewayConnection, "failed to read gateway response", err)
	}

	if resp.StatusCode >= 400 {
		return translateGatewayError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return errs.Gateway(errs.GatewayUnknown, "failed to parse gateway response", err)
	}
	return nil
}

// translateGatewayError maps the gateway's error types onto the uniform
// taxonomy the rest of the system understands.
func translateGatewayError(status int, body []byte) error {
	var envelope gatewayErrorBody
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errs.Gateway(errs.GatewayUnknown, fmt.Sprintf("gateway returned status %d", status), nil)
	}

	message := envelope.Error.Message
	if message == "" {
		message = fmt.Sprintf("gateway returned status %d", status)
	}

	switch envelope.Error.Type {
	case "card_error":
		return errs.Gateway(errs.GatewayCardError, message, nil)
	case "rate_limit_error":
		return errs.Gateway(errs.GatewayRateLimit, message, nil)
	case "invalid_request_error":
		return errs.Gateway(errs.GatewayInvalidRequest, message, nil)
	case "authentication_error":
		return errs.Gateway(errs.GatewayAuthError, message, nil)
	case "api_connection_error":
		return errs.Gateway(errs.GatewayConnection, message, nil)
	default:
		if status == http.StatusTooManyRequests {
			return errs.Gateway(errs.GatewayRateLimit, message, nil)
		}
		return errs.Gateway(errs.GatewayUnknown, message, nil)
	}
}
