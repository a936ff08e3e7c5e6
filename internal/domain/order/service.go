// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/pkg/errs"
	"gorm.io/gorm"
)

// Service handles order business logic
type Service struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewService creates a new order service
func NewService(db *gorm.DB, logger *logrus.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Pricing is the financial summary carried from checkout into the order
type Pricing struct {
	Subtotal int64
	Shipping int64
	Tax      int64
	Discount int64
	Total    int64
}

// ShippingSelection carries the chosen delivery method into the order
type ShippingSelection struct {
	Method        string
	Carrier       string
	Cost          int64
	EstimatedDays string
}

// CreateFromCart materializes an order snapshot from a cart's current
// items. The unique index on cart_id means a second insert for the same
// cart fails, which callers treat as "already converted".
func (s *Service) CreateFromCart(ctx context.Context, c *cart.Cart, pricing Pricing, payment PaymentInfo, shipping ShippingSelection, currency string) (*Order, error) {
	if len(c.Items) == 0 {
		return nil, errs.Validation("cannot create an order from an empty cart")
	}

	total := pricing.Subtotal + pricing.Shipping + pricing.Tax - pricing.Discount
	if total < 0 {
		total = 0
	}
	if pricing.Total != total {
		s.logger.WithFields(logrus.Fields{
			"cart_id":  c.ID,
			"given":    pricing.Total,
			"computed": total,
		}).Warn("order total mismatch, using computed value")
	}

	var couponCode string
	if len(c.Coupons) > 0 {
		couponCode = c.Coupons[0].Code
	}

	o := &Order{
		CartID:         c.ID,
		UserID:         c.UserID,
		Email:          c.Email,
		Status:         OrderStatusPaid,
		PaymentStatus:  PaymentStatusCompleted,
		SubtotalAmount: pricing.Subtotal,
		ShippingAmount: pricing.Shipping,
		TaxAmount:      pricing.Tax,
		DiscountAmount: pricing.Discount,
		TotalAmount:    total,
		Currency:       currency,
		CouponCode:     couponCode,
		Payment:        payment,
		Shipping: ShippingInfo{
			Method:        shipping.Method,
			Carrier:       shipping.Carrier,
			Cost:          shipping.Cost,
			EstimatedDays: shipping.EstimatedDays,
		},
	}
	now := time.Now().UTC()
	o.PaidAt = &now
	o.Payment.Amount = total

	for _, item := range c.Items {
		o.Items = append(o.Items, OrderItem{
			ProductID:      item.ProductID,
			SKU:            item.SKU,
			Name:           item.Name,
			Price:          item.UnitPrice,
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal,
			DiscountAmount: item.DiscountAmount,
			TotalPrice:     item.Subtotal,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.Conflict("order already exists for cart %d", c.ID)
			}
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return tx.Model(o).UpdateColumn("order_number", GenerateOrderNumber(o.ID)).Error
	})
	if err != nil {
		return nil, err
	}
	o.OrderNumber = GenerateOrderNumber(o.ID)

	return o, nil
}

// FindByCartID returns the order created from a cart, if any
func (s *Service) FindByCartID(ctx context.Context, cartID uint) (*Order, error) {
	var o Order
	err := s.db.WithContext(ctx).Preload("Items").Preload("Refunds").
		Where("cart_id = ?", cartID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up order by cart: %w", err)
	}
	return &o, nil
}

// FindByPaymentIntent returns the order correlated with a gateway
// payment intent id.
func (s *Service) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*Order, error) {
	var o Order
	err := s.db.WithContext(ctx).Preload("Items").Preload("Refunds").
		Where("payment_payment_intent_id = ?", paymentIntentID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("no order for payment intent %s", paymentIntentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up order by payment intent: %w", err)
	}
	return &o, nil
}

// GetOrder retrieves an order by id, scoped to its owner when userID is set
func (s *Service) GetOrder(ctx context.Context, id uint, userID *uint) (*Order, error) {
	query := s.db.WithContext(ctx).Preload("Items").Preload("Refunds").Where("id = ?", id)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var o Order
	err := query.First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("order %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return &o, nil
}

// ListOrders returns a user's orders, newest first
func (s *Service) ListOrders(ctx context.Context, userID uint, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var orders []Order
	err := s.db.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// CancelOrder cancels an order that has not progressed past processing
func (s *Service) CancelOrder(ctx context.Context, id uint, userID *uint) (*Order, error) {
	o, err := s.GetOrder(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !o.CanBeCancelled() {
		return nil, errs.State("order %s can no longer be cancelled", o.OrderNumber)
	}

	o.Status = OrderStatusCancelled
	if err := s.db.WithContext(ctx).Model(o).UpdateColumn("status", OrderStatusCancelled).Error; err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	return o, nil
}

// RecordRefund appends a refund to the order and persists the updated
// accounting in one transaction.
func (s *Service) RecordRefund(ctx context.Context, o *Order, amount int64, reason, gatewayRefundID string) error {
	if err := o.ApplyRefund(amount, reason, gatewayRefundID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		newRefund := &o.Refunds[len(o.Refunds)-1]
		if err := tx.Create(newRefund).Error; err != nil {
			return fmt.Errorf("failed to insert refund: %w", err)
		}
		return tx.Model(o).Updates(map[string]interface{}{
			"total_refunded": o.TotalRefunded,
			"payment_status": o.PaymentStatus,
			"status":         o.Status,
		}).Error
	})
}
