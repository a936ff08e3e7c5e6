package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/storefront-backend/internal/pkg/errs"
)

func testClient(handler http.HandlerFunc) (*StripeClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := &StripeClient{
		secretKey:  "sk_test_key",
		baseURL:    server.URL,
		httpClient: server.Client(),
	}
	return client, server
}

func TestCreateCheckoutSession_EncodesForm(t *testing.T) {
	var form map[string][]string
	client, server := testClient(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		assert.Equal(t, "/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"cs_1","url":"https://pay.example.com/cs_1","payment_intent":"pi_1","status":"open","amount_total":11000}`))
	})
	defer server.Close()

	userID := uint(7)
	session, err := client.CreateCheckoutSession(context.Background(), &CreateSessionRequest{
		Currency:   "usd",
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
		LineItems: []SessionLineItem{
			{Name: "Mouse", UnitAmount: 4999, Quantity: 2},
		},
		Metadata:       SessionMetadata{CartID: 12, SessionID: "sess-1", ItemCount: 1, UserID: &userID},
		DiscountAmount: 1000,
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "pi_1", session.PaymentIntentID)

	assert.Equal(t, []string{"payment"}, form["mode"])
	assert.Equal(t, []string{"Mouse"}, form["line_items[0][price_data][product_data][name]"])
	assert.Equal(t, []string{"4999"}, form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, []string{"2"}, form["line_items[0][quantity]"])
	assert.Equal(t, []string{"1000"}, form["discounts[0][coupon_data][amount_off]"])
	assert.Equal(t, []string{"12"}, form["metadata[cart_id]"])
	assert.Equal(t, []string{"7"}, form["metadata[user_id]"])
}

func TestCreateCheckoutSession_NoDiscountOmitsCoupon(t *testing.T) {
	var form map[string][]string
	client, server := testClient(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"id":"cs_1"}`))
	})
	defer server.Close()

	_, err := client.CreateCheckoutSession(context.Background(), &CreateSessionRequest{Currency: "usd"})

	require.NoError(t, err)
	assert.NotContains(t, form, "discounts[0][coupon_data][amount_off]")
}

func TestCreateRefund_PartialAmount(t *testing.T) {
	client, server := testClient(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/refunds", r.URL.Path)
		assert.Equal(t, "pi_1", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "2500", r.PostForm.Get("amount"))
		w.Write([]byte(`{"id":"re_1","payment_intent":"pi_1","amount":2500,"status":"succeeded"}`))
	})
	defer server.Close()

	refund, err := client.CreateRefund(context.Background(), &CreateRefundRequest{
		PaymentIntentID: "pi_1",
		Amount:          2500,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2500), refund.Amount)
}

func TestGatewayErrors_Translated(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode errs.GatewayCode
	}{
		{"card declined", http.StatusPaymentRequired, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`, errs.GatewayCardError},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"type":"rate_limit_error","message":"Too many requests"}}`, errs.GatewayRateLimit},
		{"invalid request", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"Missing currency"}}`, errs.GatewayInvalidRequest},
		{"bad key", http.StatusUnauthorized, `{"error":{"type":"authentication_error","message":"Invalid API key"}}`, errs.GatewayAuthError},
		{"untyped 429", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, errs.GatewayRateLimit},
		{"garbage body", http.StatusInternalServerError, `<html>oops</html>`, errs.GatewayUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := testClient(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			defer server.Close()

			_, err := client.CreateCheckoutSession(context.Background(), &CreateSessionRequest{Currency: "usd"})

			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.KindGateway))
			assert.Equal(t, tt.wantCode, errs.GatewayCodeOf(err))
		})
	}
}

func TestGatewayConnectionError(t *testing.T) {
	client, server := testClient(func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.CreateCheckoutSession(context.Background(), &CreateSessionRequest{Currency: "usd"})

	require.Error(t, err)
	assert.Equal(t, errs.GatewayConnection, errs.GatewayCodeOf(err))
}
