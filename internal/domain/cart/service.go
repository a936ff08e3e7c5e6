// internal/domain/cart/service.go
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/errs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles cart business logic. The database is the system of
// record; Redis keeps a read-through copy of guest carts keyed by
// session so anonymous browsing does not hit postgres on every read.
type Service struct {
	db          *gorm.DB
	redisClient *redis.Client
	config      *config.Config
	products    *product.Service
	coupons     *coupon.Service
	logger      *logrus.Logger
}

// NewService creates a new cart service
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, products *product.Service, coupons *coupon.Service, logger *logrus.Logger) *Service {
	return &Service{
		db:          db,
		redisClient: redisClient,
		config:      cfg,
		products:    products,
		coupons:     coupons,
		logger:      logger,
	}
}

// AddItemRequest represents add to cart request
type AddItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

// UpdateItemRequest represents update cart item request
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

// GetCart retrieves the active cart for a user or session, creating an
// empty one if none exists.
func (s *Service) GetCart(ctx context.Context, userID *uint, sessionID string) (*Cart, error) {
	if userID == nil {
		if cached := s.getCachedCart(ctx, sessionID); cached != nil {
			return cached, nil
		}
	}

	c, err := s.loadActiveCart(ctx, s.db, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = NewCart(sessionID, userID)
		expires := time.Now().UTC().Add(s.config.Checkout.GuestCartTTL)
		c.ExpiresAt = &expires
		if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
			return nil, fmt.Errorf("failed to create cart: %w", err)
		}
	}

	c.CalculateTotals()
	s.cacheCart(ctx, c)
	return c, nil
}

// AddItem adds a product to the cart after checking the catalog and
// current availability.
func (s *Service) AddItem(ctx context.Context, userID *uint, sessionID string, req *AddItemRequest) (*Cart, error) {
	prod, err := s.products.FindProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !prod.IsSellable() {
		return nil, errs.Validation("product %s is not available for sale", prod.Name)
	}

	return s.mutate(ctx, userID, sessionID, func(c *Cart) error {
		newQuantity := req.Quantity
		if existing := c.FindItem(req.ProductID); existing != nil {
			newQuantity += existing.Quantity
		}
		if prod.AvailableQuantity() < newQuantity {
			return errs.Validation("insufficient stock for %s: %d available", prod.Name, prod.AvailableQuantity())
		}

		return c.AddItem(ProductSnapshot{
			ProductID:     prod.ID,
			SKU:           prod.SKU,
			Name:          prod.Name,
			UnitPrice:     prod.Price,
			OriginalPrice: prod.CompareAtPrice,
		}, req.Quantity)
	})
}

// UpdateItem sets an item's quantity; zero removes it
func (s *Service) UpdateItem(ctx context.Context, userID *uint, sessionID string, productID uint, req *UpdateItemRequest) (*Cart, error) {
	if req.Quantity > 0 {
		prod, err := s.products.FindProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		if prod.AvailableQuantity() < req.Quantity {
			return nil, errs.Validation("insufficient stock for %s: %d available", prod.Name, prod.AvailableQuantity())
		}
	}

	return s.mutate(ctx, userID, sessionID, func(c *Cart) error {
		return c.UpdateItemQuantity(productID, req.Quantity)
	})
}

// RemoveItem removes a product from the cart
func (s *Service) RemoveItem(ctx context.Context, userID *uint, sessionID string, productID uint) (*Cart, error) {
	return s.mutate(ctx, userID, sessionID, func(c *Cart) error {
		return c.RemoveItem(productID)
	})
}

// ApplyCoupon validates a coupon against the current cart and attaches
// it with its priced discount. Consumption of the usage ledger happens
// only at order confirmation.
func (s *Service) ApplyCoupon(ctx context.Context, userID *uint, sessionID, code string) (*Cart, error) {
	return s.mutate(ctx, userID, sessionID, func(c *Cart) error {
		coup, err := s.coupons.Validate(ctx, code, userID, c.Totals.Subtotal)
		if err != nil {
			return err
		}

		items := make([]coupon.LineItem, len(c.Items))
		for i, item := range c.Items {
			items[i] = coupon.LineItem{
				ProductID: item.ProductID,
				UnitPrice: item.UnitPrice,
				Quantity:  item.Quantity,
			}
		}

		return c.ApplyCoupon(AppliedCoupon{
			Code:               coup.Code,
			DiscountType:       string(coup.DiscountType),
			Value:              coup.Value,
			DiscountAmount:     coupon.CalculateDiscount(coup, c.Totals.Subtotal, items),
			MinimumOrderAmount: coup.MinimumOrderAmount,
		})
	})
}

// RemoveCoupon detaches a coupon from the cart
func (s *Service) RemoveCoupon(ctx context.Context, userID *uint, sessionID, code string) (*Cart, error) {
	return s.mutate(ctx, userID, sessionID, func(c *Cart) error {
		return c.RemoveCoupon(code)
	})
}

// MergeOnLogin folds a guest session cart into the user's existing cart
// when the session authenticates. The guest cart is flagged merged; when
// the user has no cart yet the guest cart is simply claimed.
func (s *Service) MergeOnLogin(ctx context.Context, userID uint, sessionID string) (*Cart, error) {
	var merged *Cart

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guest, err := s.loadActiveCart(ctx, tx, nil, sessionID)
		if err != nil {
			return err
		}

		uid := userID
		userCart, err := s.loadActiveCart(ctx, tx, &uid, "")
		if err != nil {
			return err
		}

		if guest == nil || len(guest.Items) == 0 {
			merged = userCart
			return nil
		}

		if userCart == nil {
			// Nothing to merge into; the guest cart becomes the user's.
			guest.UserID = &uid
			guest.touch()
			guest.CalculateTotals()
			merged = guest
			return s.saveCart(tx, guest)
		}

		if err := userCart.MergeFrom(guest); err != nil {
			return err
		}
		if err := s.saveCart(tx, guest); err != nil {
			return err
		}
		if err := s.saveCart(tx, userCart); err != nil {
			return err
		}
		merged = userCart
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, sessionID)
	if merged == nil {
		return s.GetCart(ctx, &userID, sessionID)
	}
	return merged, nil
}

// FindByGatewayRef looks up a cart by the checkout-session or
// payment-intent id persisted at session creation.
func (s *Service) FindByGatewayRef(ctx context.Context, ref string) (*Cart, error) {
	var c Cart
	err := s.db.WithContext(ctx).
		Preload("Items").Preload("Coupons").
		Where("checkout_session_id = ? OR payment_intent_id = ?", ref, ref).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("no cart correlated with gateway reference %s", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up cart by gateway reference: %w", err)
	}
	return &c, nil
}

// SaveGatewayRefs persists the gateway correlation ids against the cart
func (s *Service) SaveGatewayRefs(ctx context.Context, cartID uint, checkoutSessionID, paymentIntentID string) error {
	result := s.db.WithContext(ctx).Model(&Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]interface{}{
			"checkout_session_id": checkoutSessionID,
			"payment_intent_id":   paymentIntentID,
			"updated_at":          time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save gateway references: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("cart %d not found", cartID)
	}
	return nil
}

// Save persists the aggregate and refreshes the session cache. Exposed
// for collaborators (checkout, reconciler) that mutate a loaded cart.
func (s *Service) Save(ctx context.Context, c *Cart) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.saveCart(tx, c)
	})
	if err != nil {
		return err
	}
	s.cacheCart(ctx, c)
	return nil
}

// mutate loads the cart under a row lock, applies fn, recalculates and
// persists. Concurrent edits to the same cart serialize on the lock and
// each write recomputes totals from the then-current item list.
func (s *Service) mutate(ctx context.Context, userID *uint, sessionID string, fn func(*Cart) error) (*Cart, error) {
	var result *Cart

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})
		c, err := s.loadActiveCart(ctx, locked, userID, sessionID)
		if err != nil {
			return err
		}
		if c == nil {
			c = NewCart(sessionID, userID)
			expires := time.Now().UTC().Add(s.config.Checkout.GuestCartTTL)
			c.ExpiresAt = &expires
			if err := tx.Create(c).Error; err != nil {
				return fmt.Errorf("failed to create cart: %w", err)
			}
		}

		c.CalculateTotals()
		if err := fn(c); err != nil {
			return err
		}

		result = c
		return s.saveCart(tx, c)
	})
	if err != nil {
		return nil, err
	}

	s.cacheCart(ctx, result)
	return result, nil
}

func (s *Service) loadActiveCart(ctx context.Context, tx *gorm.DB, userID *uint, sessionID string) (*Cart, error) {
	query := tx.WithContext(ctx).Preload("Items").Preload("Coupons").Where("status = ?", CartStatusActive)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	} else {
		if sessionID == "" {
			return nil, errs.Validation("session ID required for guest cart")
		}
		query = query.Where("session_id = ?", sessionID)
	}

	var c Cart
	err := query.Order("updated_at DESC").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return &c, nil
}

// saveCart writes the aggregate back, deleting item and coupon rows the
// mutation removed.
func (s *Service) saveCart(tx *gorm.DB, c *Cart) error {
	keptItems := make([]uint, 0, len(c.Items))
	for i := range c.Items {
		c.Items[i].CartID = c.ID
		if c.Items[i].ID != 0 {
			keptItems = append(keptItems, c.Items[i].ID)
		}
	}
	itemQuery := tx.Where("cart_id = ?", c.ID)
	if len(keptItems) > 0 {
		itemQuery = itemQuery.Where("id NOT IN ?", keptItems)
	}
	if err := itemQuery.Delete(&CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to prune cart items: %w", err)
	}

	keptCoupons := make([]uint, 0, len(c.Coupons))
	for i := range c.Coupons {
		c.Coupons[i].CartID = c.ID
		if c.Coupons[i].ID != 0 {
			keptCoupons = append(keptCoupons, c.Coupons[i].ID)
		}
	}
	couponQuery := tx.Where("cart_id = ?", c.ID)
	if len(keptCoupons) > 0 {
		couponQuery = couponQuery.Where("id NOT IN ?", keptCoupons)
	}
	if err := couponQuery.Delete(&AppliedCoupon{}).Error; err != nil {
		return fmt.Errorf("failed to prune cart coupons: %w", err)
	}

	if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(c).Error; err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

// Session cache helpers

func (s *Service) cacheKey(sessionID string) string {
	return fmt.Sprintf("cart:session:%s", sessionID)
}

func (s *Service) getCachedCart(ctx context.Context, sessionID string) *Cart {
	if sessionID == "" {
		return nil
	}
	data, err := s.redisClient.Get(ctx, s.cacheKey(sessionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WithError(err).Warn("cart cache read failed")
		}
		return nil
	}

	var c Cart
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil
	}
	if !c.IsActive() {
		return nil
	}
	return &c
}

func (s *Service) cacheCart(ctx context.Context, c *Cart) {
	if c == nil || c.SessionID == "" {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.redisClient.Set(ctx, s.cacheKey(c.SessionID), data, s.config.Checkout.GuestCartTTL).Err(); err != nil {
		s.logger.WithError(err).Warn("cart cache write failed")
	}
}

func (s *Service) invalidateCache(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := s.redisClient.Del(ctx, s.cacheKey(sessionID)).Err(); err != nil {
		s.logger.WithError(err).Warn("cart cache invalidation failed")
	}
}
