// internal/domain/cart/entity.go
package cart

import (
	"time"

	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/pkg/errs"
)

// CartStatus represents the lifecycle state of a cart
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusAbandoned CartStatus = "abandoned"
	CartStatusConverted CartStatus = "converted"
	CartStatusExpired   CartStatus = "expired"
	CartStatusMerged    CartStatus = "merged"
)

// ItemStatus represents the validation state of a cart item against the
// current catalog and inventory
type ItemStatus string

const (
	ItemStatusAvailable    ItemStatus = "available"
	ItemStatusOutOfStock   ItemStatus = "out_of_stock"
	ItemStatusLimitedStock ItemStatus = "limited_stock"
	ItemStatusPriceChanged ItemStatus = "price_changed"
	ItemStatusDiscontinued ItemStatus = "discontinued"
)

// Cart represents a mutable pre-purchase cart tied to a session and
// optionally an authenticated user. Totals are derived state and are
// recomputed on every mutation; no aggregate method performs I/O.
type Cart struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	SessionID string     `gorm:"not null;index;size:64" json:"session_id"`
	UserID    *uint      `gorm:"index" json:"user_id,omitempty"`
	Email     string     `gorm:"size:255" json:"email,omitempty"`
	Status    CartStatus `gorm:"not null;default:'active';index" json:"status"`

	Items   []CartItem      `gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	Coupons []AppliedCoupon `gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"coupons"`
	Totals  CartTotals      `gorm:"embedded;embeddedPrefix:totals_" json:"totals"`

	// Gateway correlation ids persisted at checkout-session creation so
	// webhook events can be traced back to this cart.
	CheckoutSessionID string `gorm:"index;size:255" json:"checkout_session_id,omitempty"`
	PaymentIntentID   string `gorm:"index;size:255" json:"payment_intent_id,omitempty"`

	// Pricing snapshot captured when the checkout session is created, so
	// reconciliation builds the order from the amounts the gateway was
	// asked to charge.
	CheckoutShippingAmount int64  `gorm:"default:0" json:"checkout_shipping_amount,omitempty"`
	CheckoutTaxAmount      int64  `gorm:"default:0" json:"checkout_tax_amount,omitempty"`
	CheckoutShippingMethod string `gorm:"size:100" json:"checkout_shipping_method,omitempty"`

	OrderID              *uint `gorm:"index" json:"order_id,omitempty"`
	AbandonmentEmailSent bool  `gorm:"default:false" json:"abandonment_email_sent"`

	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	ConvertedAt *time.Time     `json:"converted_at,omitempty"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// CartItem represents a line item inside a cart
type CartItem struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	CartID uint `gorm:"not null;index" json:"cart_id"`

	ProductID     uint   `gorm:"not null;index" json:"product_id"`
	SKU           string `gorm:"not null;size:100" json:"sku"`
	Name          string `gorm:"not null;size:255" json:"name"`
	UnitPrice     int64  `gorm:"not null" json:"unit_price"` // In minor currency units
	OriginalPrice int64  `gorm:"default:0" json:"original_price"`
	Quantity      int    `gorm:"not null" json:"quantity"`

	DiscountAmount int64 `gorm:"default:0" json:"discount_amount"`
	Subtotal       int64 `gorm:"not null" json:"subtotal"`

	Status         ItemStatus `gorm:"not null;default:'available'" json:"status"`
	StockAvailable int        `gorm:"default:0" json:"stock_available,omitempty"`

	// ReservedUntil is set only while a stock hold is outstanding for
	// this item's quantity.
	ReservedUntil *time.Time `json:"reserved_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppliedCoupon represents a coupon attached to a cart. A given code may
// appear at most once per cart.
type AppliedCoupon struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	CartID uint `gorm:"not null;index" json:"cart_id"`

	Code               string `gorm:"not null;size:50" json:"code"`
	DiscountType       string `gorm:"not null;size:20" json:"discount_type"`
	Value              int64  `gorm:"not null" json:"value"`
	DiscountAmount     int64  `gorm:"not null" json:"discount_amount"`
	MinimumOrderAmount int64  `gorm:"default:0" json:"minimum_order_amount"`

	CreatedAt time.Time `json:"created_at"`
}

// CartTotals represents derived cart totals
type CartTotals struct {
	ItemCount      int     `json:"item_count"`
	TotalQuantity  int     `json:"total_quantity"`
	Subtotal       int64   `json:"subtotal"`
	DiscountTotal  int64   `json:"discount_total"`
	Savings        int64   `json:"savings"`
	SavingsPercent float64 `json:"savings_percent"`
	Total          int64   `json:"total"`
}

// TableName overrides
func (Cart) TableName() string          { return "carts" }
func (CartItem) TableName() string      { return "cart_items" }
func (AppliedCoupon) TableName() string { return "cart_coupons" }

// ProductSnapshot carries the catalog fields captured into a cart item
// at add time.
type ProductSnapshot struct {
	ProductID     uint
	SKU           string
	Name          string
	UnitPrice     int64
	OriginalPrice int64
}

// NewCart creates an active cart for a session
func NewCart(sessionID string, userID *uint) *Cart {
	now := time.Now().UTC()
	return &Cart{
		SessionID: sessionID,
		UserID:    userID,
		Status:    CartStatusActive,
		Items:     []CartItem{},
		Coupons:   []AppliedCoupon{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the cart still accepts mutations
func (c *Cart) IsActive() bool {
	return c.Status == CartStatusActive
}

func (c *Cart) ensureActive() error {
	if !c.IsActive() {
		return errs.State("cart is %s and can no longer be modified", c.Status)
	}
	return nil
}

// AddItem adds quantity of a product to the cart, summing quantities
// when the product is already present.
func (c *Cart) AddItem(snapshot ProductSnapshot, quantity int) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if quantity <= 0 {
		return errs.Validation("quantity must be positive")
	}

	for i := range c.Items {
		if c.Items[i].ProductID == snapshot.ProductID {
			c.Items[i].Quantity += quantity
			c.Items[i].UnitPrice = snapshot.UnitPrice // Price at last add wins
			c.Items[i].OriginalPrice = snapshot.OriginalPrice
			c.touch()
			c.CalculateTotals()
			return nil
		}
	}

	c.Items = append(c.Items, CartItem{
		CartID:        c.ID,
		ProductID:     snapshot.ProductID,
		SKU:           snapshot.SKU,
		Name:          snapshot.Name,
		UnitPrice:     snapshot.UnitPrice,
		OriginalPrice: snapshot.OriginalPrice,
		Quantity:      quantity,
		Status:        ItemStatusAvailable,
	})
	c.touch()
	c.CalculateTotals()
	return nil
}

// UpdateItemQuantity sets the quantity of an item; zero or negative
// removes the item.
func (c *Cart) UpdateItemQuantity(productID uint, quantity int) error {
	if err := c.ensureActive(); err != nil {
		return err
	}

	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			if quantity <= 0 {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
			} else {
				c.Items[i].Quantity = quantity
			}
			c.touch()
			c.CalculateTotals()
			return nil
		}
	}
	return errs.NotFound("product %d is not in the cart", productID)
}

// RemoveItem removes a product from the cart
func (c *Cart) RemoveItem(productID uint) error {
	return c.UpdateItemQuantity(productID, 0)
}

// ApplyCoupon attaches a priced coupon to the cart. Duplicates are
// rejected and the coupon's minimum purchase threshold is enforced
// against the current subtotal.
func (c *Cart) ApplyCoupon(applied AppliedCoupon) error {
	if err := c.ensureActive(); err != nil {
		return err
	}

	for _, existing := range c.Coupons {
		if existing.Code == applied.Code {
			return errs.Validation("coupon %s is already applied", applied.Code)
		}
	}

	if applied.MinimumOrderAmount > 0 && c.Totals.Subtotal < applied.MinimumOrderAmount {
		return errs.Validation("coupon %s requires a minimum order of %d", applied.Code, applied.MinimumOrderAmount)
	}

	applied.CartID = c.ID
	c.Coupons = append(c.Coupons, applied)
	c.touch()
	c.CalculateTotals()
	return nil
}

// RemoveCoupon detaches a coupon by code
func (c *Cart) RemoveCoupon(code string) error {
	if err := c.ensureActive(); err != nil {
		return err
	}

	for i := range c.Coupons {
		if c.Coupons[i].Code == code {
			c.Coupons = append(c.Coupons[:i], c.Coupons[i+1:]...)
			c.touch()
			c.CalculateTotals()
			return nil
		}
	}
	return errs.NotFound("coupon %s is not applied to the cart", code)
}

// MergeFrom folds another cart's items into this one, summing quantities
// for matching products, and flags the source cart as merged. Used when
// a guest session authenticates and a server-side cart already exists
// for that user.
func (c *Cart) MergeFrom(other *Cart) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if other.ID == c.ID {
		return errs.Validation("cannot merge a cart into itself")
	}

	for _, item := range other.Items {
		snapshot := ProductSnapshot{
			ProductID:     item.ProductID,
			SKU:           item.SKU,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			OriginalPrice: item.OriginalPrice,
		}
		if err := c.AddItem(snapshot, item.Quantity); err != nil {
			return err
		}
	}

	other.Status = CartStatusMerged
	other.touch()
	return nil
}

// MarkConverted transitions the cart to converted exactly once, with a
// back-reference to the created order.
func (c *Cart) MarkConverted(orderID uint) error {
	if c.Status == CartStatusConverted {
		return errs.State("cart %d has already been converted", c.ID)
	}
	if err := c.ensureActive(); err != nil {
		return err
	}

	now := time.Now().UTC()
	c.Status = CartStatusConverted
	c.OrderID = &orderID
	c.ConvertedAt = &now
	c.touch()
	return nil
}

// CalculateTotals recomputes the derived totals block from the current
// items and coupons. It runs after every mutating call and is never
// cached across calls.
func (c *Cart) CalculateTotals() {
	totals := CartTotals{ItemCount: len(c.Items)}

	var originalTotal int64
	for i := range c.Items {
		item := &c.Items[i]

		subtotal := item.UnitPrice*int64(item.Quantity) - item.DiscountAmount
		if subtotal < 0 {
			subtotal = 0
		}
		item.Subtotal = subtotal

		totals.TotalQuantity += item.Quantity
		totals.Subtotal += subtotal
		totals.DiscountTotal += item.DiscountAmount

		if item.OriginalPrice > item.UnitPrice {
			totals.Savings += (item.OriginalPrice - item.UnitPrice) * int64(item.Quantity)
			originalTotal += item.OriginalPrice * int64(item.Quantity)
		} else {
			originalTotal += item.UnitPrice * int64(item.Quantity)
		}
	}

	for _, coupon := range c.Coupons {
		totals.DiscountTotal += coupon.DiscountAmount
	}

	if originalTotal > 0 && totals.Savings > 0 {
		totals.SavingsPercent = float64(totals.Savings) / float64(originalTotal) * 100
	}

	totals.Total = totals.Subtotal - totals.DiscountTotal
	if totals.Total < 0 {
		totals.Total = 0
	}

	c.Totals = totals
}

// FindItem returns the item for a product id, or nil
func (c *Cart) FindItem(productID uint) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// HasReservation reports whether any item holds an unexpired reservation
func (c *Cart) HasReservation(now time.Time) bool {
	for i := range c.Items {
		if c.Items[i].ReservedUntil != nil && c.Items[i].ReservedUntil.After(now) {
			return true
		}
	}
	return false
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
