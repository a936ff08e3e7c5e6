// internal/domain/coupon/entity.go
package coupon

import (
	"time"

	"gorm.io/gorm"
)

// DiscountType represents how a coupon prices its discount
type DiscountType string

const (
	DiscountTypePercentage   DiscountType = "percentage"
	DiscountTypeFixedAmount  DiscountType = "fixed_amount"
	DiscountTypeFreeShipping DiscountType = "free_shipping"
	DiscountTypeBuyXGetY     DiscountType = "buy_x_get_y"
)

// Coupon represents a named discount rule with eligibility constraints
// and a usage ledger.
type Coupon struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Code         string       `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Description  string       `gorm:"size:255" json:"description"`
	DiscountType DiscountType `gorm:"not null;size:20" json:"discount_type"`

	// Value is a percentage (0-100) for percentage coupons, an amount in
	// minor currency units for fixed coupons, and unused otherwise.
	Value int64 `gorm:"not null" json:"value"`

	MinimumOrderAmount    int64 `gorm:"default:0" json:"minimum_order_amount"`
	MaximumDiscountAmount int64 `gorm:"default:0" json:"maximum_discount_amount"`

	BuyXQuantity int `gorm:"default:0" json:"buy_x_quantity"`
	GetYQuantity int `gorm:"default:0" json:"get_y_quantity"`

	IsActive   bool       `gorm:"default:true" json:"is_active"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	UsageCount        int `gorm:"default:0" json:"usage_count"`
	UsageLimit        int `gorm:"default:0" json:"usage_limit"`          // 0 = unlimited
	UsageLimitPerUser int `gorm:"default:0" json:"usage_limit_per_user"` // 0 = unlimited

	// EligibleUserIDs restricts the coupon to specific customers when
	// non-empty. Stored as a comma-separated list, matching how small
	// eligibility lists are kept in the source system.
	EligibleUserIDs  string `gorm:"type:text" json:"eligible_user_ids,omitempty"`
	NewCustomersOnly bool   `gorm:"default:false" json:"new_customers_only"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// CouponUsage is an append-only record of a confirmed redemption
type CouponUsage struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	CouponID uint   `gorm:"not null;index;uniqueIndex:idx_coupon_order" json:"coupon_id"`
	OrderID  uint   `gorm:"not null;uniqueIndex:idx_coupon_order" json:"order_id"`
	UserID   *uint  `gorm:"index" json:"user_id,omitempty"`
	Code     string `gorm:"not null;size:50" json:"code"`
	Amount   int64  `gorm:"not null" json:"amount"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides
func (Coupon) TableName() string      { return "coupons" }
func (CouponUsage) TableName() string { return "coupon_usages" }

// IsWithinWindow reports whether now falls inside the validity window
func (c *Coupon) IsWithinWindow(now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}
