// internal/domain/payment/webhook.go
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Webhook event types delivered by the gateway
const (
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventPaymentCanceled   = "payment_intent.canceled"
	EventSessionCompleted  = "checkout.session.completed"
	EventSessionExpired    = "checkout.session.expired"
	EventChargeRefunded    = "charge.refunded"
)

// Event is the signed envelope the gateway posts to the webhook endpoint
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// PaymentIntentObject is the payload for payment_intent.* events
type PaymentIntentObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

// SessionObject is the payload for checkout.session.* events
type SessionObject struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"payment_intent"`
	AmountTotal     int64  `json:"amount_total"`
	Status          string `json:"status"`
}

// ChargeObject is the payload for charge.refunded events
type ChargeObject struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"payment_intent"`
	AmountRefunded  int64  `json:"amount_refunded"`
	Refunds         struct {
		Data []struct {
			ID     string `json:"id"`
			Amount int64  `json:"amount"`
			Reason string `json:"reason"`
		} `json:"data"`
	} `json:"refunds"`
}

// ParseEvent decodes a webhook payload into its envelope
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("webhook payload missing event id or type")
	}
	return &event, nil
}

// PaymentIntent decodes the event payload as a payment intent
func (e *Event) PaymentIntent() (*PaymentIntentObject, error) {
	var obj PaymentIntentObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse payment intent payload: %w", err)
	}
	return &obj, nil
}

// Session decodes the event payload as a checkout session
func (e *Event) Session() (*SessionObject, error) {
	var obj SessionObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse session payload: %w", err)
	}
	return &obj, nil
}

// Charge decodes the event payload as a charge
func (e *Event) Charge() (*ChargeObject, error) {
	var obj ChargeObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse charge payload: %w", err)
	}
	return &obj, nil
}

// DefaultSignatureTolerance bounds how stale a signed timestamp may be
const DefaultSignatureTolerance = 5 * time.Minute

// VerifySignature checks the webhook signature header
// ("t=<unix>,v1=<hex hmac>") against the shared secret. The signed
// message is "<timestamp>.<payload>"; timestamps outside the tolerance
// window are rejected to block replays.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return fmt.Errorf("missing signature header")
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("malformed signature timestamp")
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("malformed signature header")
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	expected := ComputeSignature(payload, secret, timestamp)
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("signature mismatch")
}

// ComputeSignature produces the hex HMAC-SHA256 for a payload at a
// given timestamp. Exposed for tests and for signing outbound fixtures.
func ComputeSignature(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
