// internal/interfaces/http/handlers/order.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/payment"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
	"github.com/your-org/storefront-backend/internal/pkg/pdf"
)

// OrderHandler handles order endpoints
type OrderHandler struct {
	orders   *order.Service
	gateway  *payment.StripeClient
	invoices *pdf.Service
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *order.Service, gateway *payment.StripeClient, invoices *pdf.Service) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		gateway:  gateway,
		invoices: invoices,
	}
}

// List handles GET /orders
func (h *OrderHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Orders retrieved successfully", orders)
}

// Get handles GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return
	}

	o, err := h.orders.GetOrder(c.Request.Context(), id, h.ownerScope(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Order retrieved successfully", o)
}

// Cancel handles POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return
	}

	o, err := h.orders.CancelOrder(c.Request.Context(), id, h.ownerScope(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Order cancelled", o)
}

// Invoice handles GET /orders/:id/invoice, streaming the PDF
func (h *OrderHandler) Invoice(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return
	}

	o, err := h.orders.GetOrder(c.Request.Context(), id, h.ownerScope(c))
	if err != nil {
		respondError(c, err)
		return
	}

	buf, err := h.invoices.GenerateInvoice(o)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("invoice-%s.pdf", o.OrderNumber)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// Refund handles POST /admin/orders/:id/refund. It only initiates the
// refund at the gateway; the books are updated when the resulting
// charge.refunded webhook arrives.
func (h *OrderHandler) Refund(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return
	}

	var req struct {
		Amount int64  `json:"amount" binding:"min=0"`
		Reason string `json:"reason,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	o, err := h.orders.GetOrder(c.Request.Context(), id, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	if !o.CanBeRefunded() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "Order cannot be refunded in its current state",
		})
		return
	}

	refund, err := h.gateway.CreateRefund(c.Request.Context(), &payment.CreateRefundRequest{
		PaymentIntentID: o.Payment.PaymentIntentID,
		Amount:          req.Amount,
		Reason:          req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Refund initiated", refund)
}

// ownerScope limits lookups to the caller's own orders unless the
// caller is an admin.
func (h *OrderHandler) ownerScope(c *gin.Context) *uint {
	if isAdmin, exists := c.Get("is_admin"); exists && isAdmin.(bool) {
		return nil
	}
	return middleware.UserIDPtr(c)
}
