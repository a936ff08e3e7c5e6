// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
)

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	checkout *checkout.Service
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(svc *checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc}
}

// Begin handles POST /checkout
func (h *CheckoutHandler) Begin(c *gin.Context) {
	var req checkout.BeginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result, err := h.checkout.BeginCheckout(c.Request.Context(), middleware.UserIDPtr(c), middleware.GetSessionID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Checkout session created", result)
}

// ShippingMethods handles GET /checkout/shipping-methods
func (h *CheckoutHandler) ShippingMethods(c *gin.Context) {
	methods, err := h.checkout.GetShippingMethods(c.Request.Context(), middleware.UserIDPtr(c), middleware.GetSessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Shipping methods retrieved", methods)
}

// Summary handles GET /checkout/summary
func (h *CheckoutHandler) Summary(c *gin.Context) {
	shippingMethodID := c.Query("shipping_method_id")

	summary, err := h.checkout.GetCheckoutSummary(c.Request.Context(), middleware.UserIDPtr(c), middleware.GetSessionID(c), shippingMethodID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Checkout summary", summary)
}
