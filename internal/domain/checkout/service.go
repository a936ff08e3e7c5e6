// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/payment"
	"github.com/your-org/storefront-backend/internal/pkg/errs"
)

// Gateway is the slice of the payment client the checkout flow uses
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req *payment.CreateSessionRequest) (*payment.CheckoutSession, error)
	CancelSession(ctx context.Context, sessionID string) (*payment.CheckoutSession, error)
}

// Service orchestrates the cart-to-payment handoff: stock reservation,
// final pricing, and gateway session creation.
type Service struct {
	config    *config.Config
	carts     *cart.Service
	inventory *inventory.Service
	gateway   Gateway
	logger    *logrus.Logger
}

// NewService creates a new checkout service
func NewService(cfg *config.Config, carts *cart.Service, inv *inventory.Service, gateway Gateway, logger *logrus.Logger) *Service {
	return &Service{
		config:    cfg,
		carts:     carts,
		inventory: inv,
		gateway:   gateway,
		logger:    logger,
	}
}

// ShippingMethod represents a shipping option
type ShippingMethod struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         int64  `json:"price"`
	EstimatedDays string `json:"estimated_days"`
	Carrier       string `json:"carrier"`
}

// Pricing represents the checkout pricing breakdown
type Pricing struct {
	Subtotal       int64 `json:"subtotal"`
	ShippingCost   int64 `json:"shipping_cost"`
	TaxAmount      int64 `json:"tax_amount"`
	DiscountAmount int64 `json:"discount_amount"`
	TotalAmount    int64 `json:"total_amount"`
}

// BeginRequest represents a checkout initiation request
type BeginRequest struct {
	ShippingMethodID string `json:"shipping_method_id" binding:"required"`
	Email            string `json:"email,omitempty"`
}

// BeginResult carries the gateway session handoff back to the client
type BeginResult struct {
	CheckoutSessionID string    `json:"checkout_session_id"`
	CheckoutURL       string    `json:"checkout_url"`
	Pricing           Pricing   `json:"pricing"`
	ReservedUntil     time.Time `json:"reserved_until"`
}

// Summary represents the pre-payment checkout summary
type Summary struct {
	Cart           *cart.Cart       `json:"cart"`
	ShippingMethod *ShippingMethod  `json:"shipping_method,omitempty"`
	Methods        []ShippingMethod `json:"available_shipping_methods"`
	Pricing        Pricing          `json:"pricing"`
}

// BeginCheckout validates the cart, places stock holds, prices the
// order, and opens a hosted gateway session. Holds are released again
// if the gateway call or the follow-up persistence fails, so a failed
// attempt leaves the cart exactly as it was.
func (s *Service) BeginCheckout(ctx context.Context, userID *uint, sessionID string, req *BeginRequest) (*BeginResult, error) {
	c, err := s.carts.GetCart(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, errs.Validation("cannot check out an empty cart")
	}
	if c.HasReservation(time.Now().UTC()) {
		return nil, errs.Conflict("a checkout is already in progress for this cart")
	}

	method := s.resolveShippingMethod(c, req.ShippingMethodID)
	if method == nil {
		return nil, errs.Validation("unknown shipping method %s", req.ShippingMethodID)
	}

	if req.Email != "" {
		c.Email = req.Email
	}

	if _, err := s.inventory.ReserveCartStock(ctx, c, s.config.Checkout.ReservationTTL); err != nil {
		return nil, err
	}

	pricing := s.price(c, method)

	session, err := s.gateway.CreateCheckoutSession(ctx, s.buildSessionRequest(c, method, pricing))
	if err != nil {
		s.rollbackHolds(ctx, c)
		return nil, err
	}

	c.CheckoutSessionID = session.ID
	c.PaymentIntentID = session.PaymentIntentID
	c.CheckoutShippingAmount = pricing.ShippingCost
	c.CheckoutTaxAmount = pricing.TaxAmount
	c.CheckoutShippingMethod = method.ID
	if err := s.carts.Save(ctx, c); err != nil {
		if _, cancelErr := s.gateway.CancelSession(ctx, session.ID); cancelErr != nil {
			s.logger.WithField("checkout_session_id", session.ID).
				WithError(cancelErr).Error("Failed to cancel orphaned gateway session")
		}
		s.rollbackHolds(ctx, c)
		return nil, err
	}

	reservedUntil := time.Now().UTC().Add(s.config.Checkout.ReservationTTL)
	s.logger.WithFields(logrus.Fields{
		"cart_id":             c.ID,
		"checkout_session_id": session.ID,
		"total":               pricing.TotalAmount,
	}).Info("Checkout session created")

	return &BeginResult{
		CheckoutSessionID: session.ID,
		CheckoutURL:       session.URL,
		Pricing:           pricing,
		ReservedUntil:     reservedUntil,
	}, nil
}

// GetShippingMethods lists the delivery options for a cart, with free
// shipping applied where the cart qualifies.
func (s *Service) GetShippingMethods(ctx context.Context, userID *uint, sessionID string) ([]ShippingMethod, error) {
	c, err := s.carts.GetCart(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.shippingMethodsFor(c), nil
}

// GetCheckoutSummary prices the cart against a candidate shipping
// method without reserving anything.
func (s *Service) GetCheckoutSummary(ctx context.Context, userID *uint, sessionID, shippingMethodID string) (*Summary, error) {
	c, err := s.carts.GetCart(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	methods := s.shippingMethodsFor(c)
	summary := &Summary{Cart: c, Methods: methods}

	method := s.resolveShippingMethod(c, shippingMethodID)
	if method == nil && len(methods) > 0 {
		method = &methods[0]
	}
	if method != nil {
		summary.ShippingMethod = method
		summary.Pricing = s.price(c, method)
	}
	return summary, nil
}

func (s *Service) buildSessionRequest(c *cart.Cart, method *ShippingMethod, pricing Pricing) *payment.CreateSessionRequest {
	req := &payment.CreateSessionRequest{
		Currency:   s.config.Checkout.Currency,
		SuccessURL: s.config.Checkout.SuccessURL,
		CancelURL:  s.config.Checkout.CancelURL,
		Metadata: payment.SessionMetadata{
			CartID:    c.ID,
			SessionID: c.SessionID,
			ItemCount: c.Totals.ItemCount,
			UserID:    c.UserID,
		},
		DiscountAmount: pricing.DiscountAmount,
	}
	for _, item := range c.Items {
		req.LineItems = append(req.LineItems, payment.SessionLineItem{
			Name:       item.Name,
			UnitAmount: item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}
	if pricing.ShippingCost > 0 {
		req.LineItems = append(req.LineItems, payment.SessionLineItem{
			Name:       "Shipping (" + method.Name + ")",
			UnitAmount: pricing.ShippingCost,
			Quantity:   1,
		})
	}
	if pricing.TaxAmount > 0 {
		req.LineItems = append(req.LineItems, payment.SessionLineItem{
			Name:       "Tax",
			UnitAmount: pricing.TaxAmount,
			Quantity:   1,
		})
	}
	return req
}

// price computes the final breakdown for a cart and shipping method.
// Tax applies to the discounted goods amount, not to shipping.
func (s *Service) price(c *cart.Cart, method *ShippingMethod) Pricing {
	p := Pricing{
		Subtotal:       c.Totals.Subtotal,
		DiscountAmount: c.Totals.DiscountTotal,
		ShippingCost:   method.Price,
	}

	taxable := p.Subtotal - p.DiscountAmount
	if taxable < 0 {
		taxable = 0
	}
	p.TaxAmount = taxable * s.config.Checkout.TaxRateBasisPoints / 10000

	p.TotalAmount = taxable + p.ShippingCost + p.TaxAmount
	return p
}

// shippingMethodsFor returns the flat method catalog with free shipping
// applied to the standard tier when the cart qualifies.
func (s *Service) shippingMethodsFor(c *cart.Cart) []ShippingMethod {
	methods := []ShippingMethod{
		{
			ID:            "standard",
			Name:          "Standard Shipping",
			Description:   "Regular delivery in 5-7 business days",
			Price:         999,
			EstimatedDays: "5-7 business days",
			Carrier:       "USPS",
		},
		{
			ID:            "express",
			Name:          "Express Shipping",
			Description:   "Fast delivery in 2-3 business days",
			Price:         1999,
			EstimatedDays: "2-3 business days",
			Carrier:       "FedEx",
		},
	}

	if s.qualifiesForFreeShipping(c) {
		methods[0].Price = 0
		methods[0].Description = "Free standard shipping"
	}
	return methods
}

func (s *Service) qualifiesForFreeShipping(c *cart.Cart) bool {
	for _, applied := range c.Coupons {
		if applied.DiscountType == string(coupon.DiscountTypeFreeShipping) {
			return true
		}
	}
	threshold := s.config.Checkout.FreeShippingThreshold
	return threshold > 0 && c.Totals.Subtotal >= threshold
}

func (s *Service) resolveShippingMethod(c *cart.Cart, id string) *ShippingMethod {
	for _, m := range s.shippingMethodsFor(c) {
		if m.ID == id {
			method := m
			return &method
		}
	}
	return nil
}

func (s *Service) rollbackHolds(ctx context.Context, c *cart.Cart) {
	if err := s.inventory.ReleaseCartStock(ctx, c); err != nil {
		s.logger.WithField("cart_id", c.ID).
			WithError(err).Error("Failed to release stock holds after aborted checkout")
	}
}
