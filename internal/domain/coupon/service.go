// internal/domain/coupon/service.go
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/storefront-backend/internal/pkg/errs"
	"gorm.io/gorm"
)

// Service handles coupon validation, pricing, and consumption
type Service struct {
	db *gorm.DB
}

// NewService creates a new coupon service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// LineItem is the slice of a cart the discount calculation needs
type LineItem struct {
	ProductID uint
	UnitPrice int64
	Quantity  int
}

// Validate runs the eligibility check chain for a coupon code. The first
// failing check short-circuits with a specific reason; validation has no
// side effects.
func (s *Service) Validate(ctx context.Context, code string, userID *uint, orderTotal int64) (*Coupon, error) {
	var c Coupon
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("coupon %s does not exist", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve coupon: %w", err)
	}

	if !c.IsActive {
		return nil, errs.Validation("coupon %s is not active", code)
	}

	if !c.IsWithinWindow(time.Now().UTC()) {
		return nil, errs.Validation("coupon %s is outside its validity period", code)
	}

	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, errs.Validation("coupon %s has reached its usage limit", code)
	}

	if c.UsageLimitPerUser > 0 && userID != nil {
		var used int64
		if err := s.db.WithContext(ctx).Model(&CouponUsage{}).
			Where("coupon_id = ? AND user_id = ?", c.ID, *userID).
			Count(&used).Error; err != nil {
			return nil, fmt.Errorf("failed to count coupon usage: %w", err)
		}
		if used >= int64(c.UsageLimitPerUser) {
			return nil, errs.Validation("coupon %s has already been used the maximum number of times", code)
		}
	}

	if c.MinimumOrderAmount > 0 && orderTotal < c.MinimumOrderAmount {
		return nil, errs.Validation("coupon %s requires a minimum order amount of %d", code, c.MinimumOrderAmount)
	}

	if c.EligibleUserIDs != "" {
		if userID == nil || !isEligible(c.EligibleUserIDs, *userID) {
			return nil, errs.Validation("coupon %s is not available for this customer", code)
		}
	}

	if c.NewCustomersOnly {
		if userID == nil {
			return nil, errs.Validation("coupon %s is for new customers only", code)
		}
		var priorOrders int64
		if err := s.db.WithContext(ctx).Table("orders").
			Where("user_id = ? AND status <> ?", *userID, "cancelled").
			Count(&priorOrders).Error; err != nil {
			return nil, fmt.Errorf("failed to count prior orders: %w", err)
		}
		if priorOrders > 0 {
			return nil, errs.Validation("coupon %s is for new customers only", code)
		}
	}

	return &c, nil
}

// CalculateDiscount computes the discount amount for a coupon against an
// order total and its line items.
func CalculateDiscount(c *Coupon, orderTotal int64, items []LineItem) int64 {
	switch c.DiscountType {
	case DiscountTypePercentage:
		discount := orderTotal * c.Value / 100
		if c.MaximumDiscountAmount > 0 && discount > c.MaximumDiscountAmount {
			discount = c.MaximumDiscountAmount
		}
		return discount

	case DiscountTypeFixedAmount:
		if c.Value > orderTotal {
			return orderTotal
		}
		return c.Value

	case DiscountTypeFreeShipping:
		// Shipping is zeroed at the shipping-calculation stage instead.
		return 0

	case DiscountTypeBuyXGetY:
		if c.BuyXQuantity <= 0 || c.GetYQuantity <= 0 {
			return 0
		}
		var qualifyingQty int
		var qualifyingValue int64
		for _, item := range items {
			qualifyingQty += item.Quantity
			qualifyingValue += item.UnitPrice * int64(item.Quantity)
		}
		if qualifyingQty == 0 {
			return 0
		}
		freeSets := qualifyingQty / c.BuyXQuantity
		if freeSets == 0 {
			return 0
		}
		// Free units are priced at the average unit price of qualifying
		// items; an approximation carried over from the source pricing.
		avgPrice := qualifyingValue / int64(qualifyingQty)
		return int64(freeSets*c.GetYQuantity) * avgPrice

	default:
		return 0
	}
}

// Consume appends a usage record and increments the coupon's usage count.
// The increment is guarded so a coupon with usage_limit = N can be
// consumed at most N times even under concurrent checkouts. Called only
// once the associated order is confirmed, never at cart-apply time.
func (s *Service) Consume(ctx context.Context, couponID, orderID uint, userID *uint, code string, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Coupon{}).
			Where("id = ? AND (usage_limit = 0 OR usage_count < usage_limit)", couponID).
			UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
		if result.Error != nil {
			return fmt.Errorf("failed to increment coupon usage: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errs.Conflict("coupon %s has reached its usage limit", code)
		}

		usage := CouponUsage{
			CouponID: couponID,
			OrderID:  orderID,
			UserID:   userID,
			Code:     code,
			Amount:   amount,
		}
		if err := tx.Create(&usage).Error; err != nil {
			return fmt.Errorf("failed to record coupon usage: %w", err)
		}
		return nil
	})
}

// ConsumeCode resolves a coupon code and records its consumption. Codes
// that no longer resolve are logged and skipped rather than failing the
// surrounding order flow.
func (s *Service) ConsumeCode(ctx context.Context, code string, orderID uint, userID *uint, amount int64) error {
	var c Coupon
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load coupon %s: %w", code, err)
	}
	return s.Consume(ctx, c.ID, orderID, userID, code, amount)
}

func isEligible(list string, userID uint) bool {
	for _, part := range strings.Split(list, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			continue
		}
		if uint(id) == userID {
			return true
		}
	}
	return false
}
