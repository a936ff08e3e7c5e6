// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
)

// CartHandler handles cart endpoints
type CartHandler struct {
	carts *cart.Service
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts *cart.Service) *CartHandler {
	return &CartHandler{carts: carts}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	result, err := h.carts.GetCart(c.Request.Context(), middleware.UserIDPtr(c), middleware.GetSessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Cart retrieved successfully", result)
}

// AddItem handles POST /cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	var req cart.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result, err := h.carts.AddItem(c.Request.Context(), middleware.UserIDPtr(c), middleware.GetSessionID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Item added to cart", result)
}

// UpdateItem handles PUT /cart/items/:productID
func (h *CartHandler) UpdateItem(c *gin.Context) {
	productID, err := parseUintParam(c, "productID")
	if err != nil {
		return
	}

	var req cart.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result, err := h.carts.UpdateItem(c.Request.Context(), middleware.UserIDPtr(c), middleware.GetSessionID(c), productID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Cart item updated", result)
}

// RemoveItem handles DELETE /cart/items/:productID
func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID, err := parseUintParam(c, "productID")
	if err != nil {
		return
	}

	result, err := h.carts.RemoveItem(c.Request.Context(), middleware.UserIDPtr(c), middleware.GetSessionID(c), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Item removed from cart", result)
}

// ApplyCoupon handles POST /cart/coupons
func (h *CartHandler) ApplyCoupon(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result, err := h.carts.ApplyCoupon(c.Request.Context(), middleware.UserIDPtr(c), middleware.GetSessionID(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Coupon applied", result)
}

// RemoveCoupon handles DELETE /cart/coupons/:code
func (h *CartHandler) RemoveCoupon(c *gin.Context) {
	code := c.Param("code")

	result, err := h.carts.RemoveCoupon(c.Request.Context(), middleware.UserIDPtr(c), middleware.GetSessionID(c), code)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Coupon removed", result)
}

// Merge handles POST /cart/merge. Requires authentication: folds the
// guest session cart into the caller's cart.
func (h *CartHandler) Merge(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	result, err := h.carts.MergeOnLogin(c.Request.Context(), userID, middleware.GetSessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Carts merged", result)
}

func parseUintParam(c *gin.Context, name string) (uint, error) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, err
	}
	return uint(value), nil
}
