// internal/domain/order/entity.go
package order

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/pkg/errs"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusProcessing        OrderStatus = "processing"
	OrderStatusPaid              OrderStatus = "paid"
	OrderStatusShipped           OrderStatus = "shipped"
	OrderStatusDelivered         OrderStatus = "delivered"
	OrderStatusCancelled         OrderStatus = "cancelled"
	OrderStatusRefunded          OrderStatus = "refunded"
	OrderStatusPartiallyRefunded OrderStatus = "partially_refunded"
)

// PaymentStatus represents payment status
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Order represents a committed purchase. It is created from exactly one
// cart, exactly once (enforced by the unique cart_id index), and is
// append-only afterwards: refunds and status transitions only.
type Order struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderNumber string `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	CartID      uint   `gorm:"uniqueIndex;not null" json:"cart_id"`
	UserID      *uint  `gorm:"index" json:"user_id,omitempty"`
	Email       string `gorm:"size:255" json:"email"`

	Status        OrderStatus   `gorm:"not null;default:'pending'" json:"status"`
	PaymentStatus PaymentStatus `gorm:"not null;default:'pending'" json:"payment_status"`

	// Financial summary, in minor currency units
	SubtotalAmount int64  `gorm:"not null" json:"subtotal_amount"`
	ShippingAmount int64  `gorm:"default:0" json:"shipping_amount"`
	TaxAmount      int64  `gorm:"default:0" json:"tax_amount"`
	DiscountAmount int64  `gorm:"default:0" json:"discount_amount"`
	TotalAmount    int64  `gorm:"not null" json:"total_amount"`
	TotalRefunded  int64  `gorm:"default:0" json:"total_refunded"`
	Currency       string `gorm:"size:3;default:'USD'" json:"currency"`

	CouponCode string `gorm:"size:50" json:"coupon_code,omitempty"`

	Payment  PaymentInfo  `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	Shipping ShippingInfo `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping"`

	PaidAt    *time.Time     `json:"paid_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Items   []OrderItem `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	Refunds []Refund    `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"refunds,omitempty"`
}

// OrderItem snapshots a cart line at conversion time
type OrderItem struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	OrderID   uint   `gorm:"not null;index" json:"order_id"`
	ProductID uint   `gorm:"not null;index" json:"product_id"`
	SKU       string `gorm:"not null;size:100" json:"sku"`
	Name      string `gorm:"not null;size:255" json:"name"`

	Price          int64 `gorm:"not null" json:"price"`
	Quantity       int   `gorm:"not null" json:"quantity"`
	Subtotal       int64 `gorm:"not null" json:"subtotal"`
	TaxAmount      int64 `gorm:"default:0" json:"tax_amount"`
	DiscountAmount int64 `gorm:"default:0" json:"discount_amount"`
	TotalPrice     int64 `gorm:"not null" json:"total_price"`

	CreatedAt time.Time `json:"created_at"`
}

// PaymentInfo embeds the gateway correlation data on the order
type PaymentInfo struct {
	Method            string `gorm:"size:50" json:"method"`
	CheckoutSessionID string `gorm:"size:255;index" json:"checkout_session_id,omitempty"`
	PaymentIntentID   string `gorm:"size:255;index" json:"payment_intent_id,omitempty"`
	Amount            int64  `json:"amount"`
}

// ShippingInfo embeds the delivery summary on the order
type ShippingInfo struct {
	Method        string `gorm:"size:100" json:"method"`
	Carrier       string `gorm:"size:50" json:"carrier,omitempty"`
	Cost          int64  `json:"cost"`
	EstimatedDays string `gorm:"size:50" json:"estimated_days,omitempty"`
}

// Refund is an append-only record of money returned against an order
type Refund struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	OrderID         uint   `gorm:"not null;index" json:"order_id"`
	GatewayRefundID string `gorm:"size:255" json:"gateway_refund_id,omitempty"`
	Amount          int64  `gorm:"not null" json:"amount"`
	Reason          string `gorm:"size:255" json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides
func (Order) TableName() string     { return "orders" }
func (OrderItem) TableName() string { return "order_items" }
func (Refund) TableName() string    { return "order_refunds" }

// GenerateOrderNumber builds the human-facing order number
func GenerateOrderNumber(id uint) string {
	// Format: ORD-YYYYMMDD-XXXXX
	return fmt.Sprintf("ORD-%s-%05d", time.Now().UTC().Format("20060102"), id)
}

// CanBeCancelled checks if the order can still be cancelled
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusProcessing
}

// CanBeRefunded checks if the order can accept a refund
func (o *Order) CanBeRefunded() bool {
	if o.PaymentStatus != PaymentStatusCompleted && o.PaymentStatus != PaymentStatusPartiallyRefunded {
		return false
	}
	return o.TotalRefunded < o.TotalAmount
}

// ApplyRefund appends a refund record and updates the refund accounting.
// Payment status flips to refunded when the full total has been
// returned, partially_refunded otherwise.
func (o *Order) ApplyRefund(amount int64, reason, gatewayRefundID string) error {
	if amount <= 0 {
		return errs.Validation("refund amount must be positive")
	}
	if !o.CanBeRefunded() {
		return errs.State("order %s cannot be refunded in its current state", o.OrderNumber)
	}
	if o.TotalRefunded+amount > o.TotalAmount {
		return errs.Validation("refund amount %d exceeds refundable balance %d", amount, o.TotalAmount-o.TotalRefunded)
	}

	o.Refunds = append(o.Refunds, Refund{
		OrderID:         o.ID,
		GatewayRefundID: gatewayRefundID,
		Amount:          amount,
		Reason:          reason,
	})
	o.TotalRefunded += amount

	if o.TotalRefunded == o.TotalAmount {
		o.PaymentStatus = PaymentStatusRefunded
		o.Status = OrderStatusRefunded
	} else {
		o.PaymentStatus = PaymentStatusPartiallyRefunded
		o.Status = OrderStatusPartiallyRefunded
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}
