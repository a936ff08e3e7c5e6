// internal/domain/payment/reconciler.go
package payment

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/pkg/errs"
)

// CartStore resolves carts by their gateway correlation ids
type CartStore interface {
	FindByGatewayRef(ctx context.Context, ref string) (*cart.Cart, error)
	Save(ctx context.Context, c *cart.Cart) error
}

// OrderStore creates and amends orders during reconciliation
type OrderStore interface {
	CreateFromCart(ctx context.Context, c *cart.Cart, pricing order.Pricing, payment order.PaymentInfo, shipping order.ShippingSelection, currency string) (*order.Order, error)
	FindByCartID(ctx context.Context, cartID uint) (*order.Order, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*order.Order, error)
	RecordRefund(ctx context.Context, o *order.Order, amount int64, reason, gatewayRefundID string) error
}

// StockManager finalizes or releases the holds a checkout placed
type StockManager interface {
	CommitCartStock(ctx context.Context, c *cart.Cart) error
	ReleaseCartStock(ctx context.Context, c *cart.Cart) error
}

// EventLedger records processed event ids for idempotency. Forget
// undoes the record when handling the event failed, so the gateway's
// redelivery gets a fresh attempt.
type EventLedger interface {
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// CouponConsumer burns coupon usage once an order is confirmed
type CouponConsumer interface {
	ConsumeCode(ctx context.Context, code string, orderID uint, userID *uint, amount int64) error
}

// Notifier sends customer-facing messages after reconciliation
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, o *order.Order) error
}

// Reconciler turns gateway webhook events into order, stock, and cart
// state transitions. Every branch is idempotent: redelivered events hit
// the ledger and stop, and events for already-settled carts are no-ops.
type Reconciler struct {
	carts    CartStore
	orders   OrderStore
	stock    StockManager
	ledger   EventLedger
	coupons  CouponConsumer
	notifier Notifier
	currency string
	logger   *logrus.Logger
}

// NewReconciler creates a new webhook reconciler. notifier may be nil
// when no mailer is configured.
func NewReconciler(carts CartStore, orders OrderStore, stock StockManager, ledger EventLedger, coupons CouponConsumer, notifier Notifier, currency string, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		carts:    carts,
		orders:   orders,
		stock:    stock,
		ledger:   ledger,
		coupons:  coupons,
		notifier: notifier,
		currency: currency,
		logger:   logger,
	}
}

// HandleEvent processes a verified webhook event. Unknown event types
// and events referencing unknown carts are acknowledged without action.
// A failed attempt leaves no ledger entry, so the gateway's redelivery
// of the same event is processed again rather than suppressed.
func (r *Reconciler) HandleEvent(ctx context.Context, event *Event) error {
	fresh, err := r.ledger.MarkProcessed(ctx, event.ID, event.Type)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	if !fresh {
		r.logger.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Info("Skipping already-processed webhook event")
		return nil
	}

	if err := r.dispatch(ctx, event); err != nil {
		if forgetErr := r.ledger.Forget(ctx, event.ID); forgetErr != nil {
			r.logger.WithField("event_id", event.ID).
				WithError(forgetErr).Error("Failed to unmark webhook event after handling error")
		}
		return err
	}
	return nil
}

func (r *Reconciler) dispatch(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventPaymentSucceeded:
		intent, err := event.PaymentIntent()
		if err != nil {
			return err
		}
		return r.handleSuccess(ctx, intent.ID, intent.Amount)

	case EventSessionCompleted:
		session, err := event.Session()
		if err != nil {
			return err
		}
		return r.handleSessionCompleted(ctx, session)

	case EventPaymentFailed, EventPaymentCanceled:
		intent, err := event.PaymentIntent()
		if err != nil {
			return err
		}
		return r.handlePaymentFailure(ctx, intent.ID)

	case EventSessionExpired:
		session, err := event.Session()
		if err != nil {
			return err
		}
		return r.handleSessionExpired(ctx, session.ID)

	case EventChargeRefunded:
		charge, err := event.Charge()
		if err != nil {
			return err
		}
		return r.handleRefund(ctx, charge)

	default:
		r.logger.WithField("event_type", event.Type).Debug("Ignoring unhandled webhook event type")
		return nil
	}
}

// cartByRef resolves a cart by gateway correlation id, flattening a
// not-found lookup into a nil cart so callers can warn and acknowledge.
func (r *Reconciler) cartByRef(ctx context.Context, ref string) (*cart.Cart, error) {
	c, err := r.carts.FindByGatewayRef(ctx, ref)
	if errs.IsKind(err, errs.KindNotFound) {
		return nil, nil
	}
	return c, err
}

func (r *Reconciler) handleSessionCompleted(ctx context.Context, session *SessionObject) error {
	c, err := r.cartByRef(ctx, session.ID)
	if err != nil {
		return err
	}
	if c != nil && session.PaymentIntentID != "" && c.PaymentIntentID == "" {
		c.PaymentIntentID = session.PaymentIntentID
		if err := r.carts.Save(ctx, c); err != nil {
			return err
		}
	}
	return r.finalize(ctx, c, session.ID, session.AmountTotal)
}

func (r *Reconciler) handleSuccess(ctx context.Context, paymentIntentID string, amount int64) error {
	c, err := r.cartByRef(ctx, paymentIntentID)
	if err != nil {
		return err
	}
	return r.finalize(ctx, c, paymentIntentID, amount)
}

// finalize converts a paid cart into an order: commit the stock holds,
// snapshot the order, consume coupons, and notify the customer.
func (r *Reconciler) finalize(ctx context.Context, c *cart.Cart, ref string, gatewayAmount int64) error {
	if c == nil {
		r.logger.WithField("ref", ref).Warn("Payment succeeded for unknown cart reference")
		return nil
	}
	if c.Status == cart.CartStatusConverted {
		return nil
	}

	existing, err := r.orders.FindByCartID(ctx, c.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		r.logger.WithFields(logrus.Fields{
			"cart_id":  c.ID,
			"order_id": existing.ID,
		}).Info("Order already exists for cart, skipping creation")
		return nil
	}

	pricing := order.Pricing{
		Subtotal: c.Totals.Subtotal,
		Shipping: c.CheckoutShippingAmount,
		Tax:      c.CheckoutTaxAmount,
		Discount: c.Totals.DiscountTotal,
		Total:    c.Totals.Total + c.CheckoutShippingAmount + c.CheckoutTaxAmount,
	}
	if gatewayAmount > 0 && gatewayAmount != pricing.Total {
		r.logger.WithFields(logrus.Fields{
			"cart_id":        c.ID,
			"gateway_amount": gatewayAmount,
			"local_total":    pricing.Total,
		}).Warn("Gateway amount does not match locally computed total")
	}

	if err := r.stock.CommitCartStock(ctx, c); err != nil {
		return fmt.Errorf("failed to commit stock for cart %d: %w", c.ID, err)
	}

	o, err := r.orders.CreateFromCart(ctx, c, pricing, order.PaymentInfo{
		Method:            "card",
		CheckoutSessionID: c.CheckoutSessionID,
		PaymentIntentID:   c.PaymentIntentID,
		Amount:            pricing.Total,
	}, order.ShippingSelection{
		Method: c.CheckoutShippingMethod,
		Cost:   c.CheckoutShippingAmount,
	}, r.currency)
	if err != nil {
		if errs.IsKind(err, errs.KindConflict) {
			r.logger.WithField("cart_id", c.ID).Info("Concurrent order creation detected, treating as converted")
			return nil
		}
		return err
	}

	if err := c.MarkConverted(o.ID); err != nil {
		return err
	}
	if err := r.carts.Save(ctx, c); err != nil {
		return err
	}

	for _, applied := range c.Coupons {
		if err := r.coupons.ConsumeCode(ctx, applied.Code, o.ID, c.UserID, applied.DiscountAmount); err != nil {
			r.logger.WithFields(logrus.Fields{
				"order_id": o.ID,
				"code":     applied.Code,
			}).WithError(err).Error("Failed to consume coupon")
		}
	}

	if r.notifier != nil {
		if err := r.notifier.SendOrderConfirmation(ctx, o); err != nil {
			r.logger.WithField("order_id", o.ID).WithError(err).Error("Failed to send order confirmation")
		}
	}

	r.logger.WithFields(logrus.Fields{
		"cart_id":      c.ID,
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"total":        o.TotalAmount,
	}).Info("Order created from paid cart")
	return nil
}

// handlePaymentFailure releases the stock holds and returns the cart to
// the customer for another attempt.
func (r *Reconciler) handlePaymentFailure(ctx context.Context, paymentIntentID string) error {
	c, err := r.cartByRef(ctx, paymentIntentID)
	if err != nil {
		return err
	}
	if c == nil {
		r.logger.WithField("ref", paymentIntentID).Warn("Payment failure for unknown cart reference")
		return nil
	}
	if c.Status != cart.CartStatusActive {
		return nil
	}

	if err := r.stock.ReleaseCartStock(ctx, c); err != nil {
		return fmt.Errorf("failed to release stock for cart %d: %w", c.ID, err)
	}
	if err := r.carts.Save(ctx, c); err != nil {
		return err
	}
	r.logger.WithField("cart_id", c.ID).Info("Released stock holds after failed payment")
	return nil
}

// handleSessionExpired releases the holds and marks the cart abandoned.
func (r *Reconciler) handleSessionExpired(ctx context.Context, sessionID string) error {
	c, err := r.cartByRef(ctx, sessionID)
	if err != nil {
		return err
	}
	if c == nil {
		r.logger.WithField("ref", sessionID).Warn("Session expiry for unknown cart reference")
		return nil
	}
	if c.Status != cart.CartStatusActive {
		return nil
	}

	if err := r.stock.ReleaseCartStock(ctx, c); err != nil {
		return fmt.Errorf("failed to release stock for cart %d: %w", c.ID, err)
	}
	c.Status = cart.CartStatusAbandoned
	if err := r.carts.Save(ctx, c); err != nil {
		return err
	}
	r.logger.WithField("cart_id", c.ID).Info("Marked cart abandoned after checkout session expired")
	return nil
}

// handleRefund records the refund delta reported by the gateway against
// the matching order.
func (r *Reconciler) handleRefund(ctx context.Context, charge *ChargeObject) error {
	if charge.PaymentIntentID == "" {
		r.logger.WithField("charge_id", charge.ID).Warn("Refund event without payment intent reference")
		return nil
	}
	o, err := r.orders.FindByPaymentIntent(ctx, charge.PaymentIntentID)
	if errs.IsKind(err, errs.KindNotFound) {
		r.logger.WithField("payment_intent_id", charge.PaymentIntentID).Warn("Refund event for unknown order")
		return nil
	}
	if err != nil {
		return err
	}

	delta := charge.AmountRefunded - o.TotalRefunded
	if delta <= 0 {
		return nil
	}

	refundID := charge.ID
	reason := ""
	if n := len(charge.Refunds.Data); n > 0 {
		latest := charge.Refunds.Data[n-1]
		refundID = latest.ID
		reason = latest.Reason
	}

	if err := r.orders.RecordRefund(ctx, o, delta, reason, refundID); err != nil {
		return fmt.Errorf("failed to record refund for order %d: %w", o.ID, err)
	}
	r.logger.WithFields(logrus.Fields{
		"order_id": o.ID,
		"amount":   delta,
	}).Info("Recorded gateway refund")
	return nil
}
