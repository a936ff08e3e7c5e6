// internal/interfaces/http/handlers/webhook.go
package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/payment"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler receives payment gateway webhooks
type WebhookHandler struct {
	config     *config.Config
	reconciler *payment.Reconciler
	logger     *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(cfg *config.Config, reconciler *payment.Reconciler, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		config:     cfg,
		reconciler: reconciler,
		logger:     logger,
	}
}

// HandleStripe handles POST /webhooks/stripe. The signature is checked
// before the payload is parsed. A reconciliation failure answers 500
// with the ledger entry rolled back, so the gateway redelivers and the
// event is retried instead of lost.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	err = payment.VerifySignature(body, signature, h.config.External.Stripe.WebhookSecret,
		payment.DefaultSignatureTolerance, time.Now().UTC())
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"client_ip": c.ClientIP(),
		}).WithError(err).Error("Webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	event, err := payment.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event payload"})
		return
	}

	if err := h.reconciler.HandleEvent(c.Request.Context(), event); err != nil {
		h.logger.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).WithError(err).Error("Webhook reconciliation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
