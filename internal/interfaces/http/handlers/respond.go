// internal/interfaces/http/handlers/respond.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/pkg/errs"
)

// respondError is the single place domain error kinds turn into HTTP
// responses. Everything unclassified is a 500 with a generic body.
func respondError(c *gin.Context, err error) {
	var status int
	body := gin.H{"error": err.Error()}

	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindState:
		status = http.StatusUnprocessableEntity
	case errs.KindGateway:
		status = http.StatusBadGateway
		code := errs.GatewayCodeOf(err)
		body["gateway_code"] = string(code)
		switch code {
		case errs.GatewayCardError:
			status = http.StatusPaymentRequired
		case errs.GatewayInvalidRequest, errs.GatewayAuthError:
			// Configuration defects; the detail is for operators, not
			// the client.
			body["error"] = "Payment gateway request failed"
		}
	default:
		status = http.StatusInternalServerError
		body = gin.H{"error": "Internal server error"}
	}

	// Surface the original message to the gin logger for 5xx paths
	if status >= 500 {
		_ = c.Error(err)
	}

	c.JSON(status, body)
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"data":    data,
	})
}
