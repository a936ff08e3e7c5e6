// internal/interfaces/http/middleware/session.go
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionHeader = "X-Session-ID"
	sessionCookie = "cart_session"
	sessionMaxAge = 30 * 24 * 60 * 60
)

// Session resolves the cart session id from the request, minting one
// for first-time visitors. The id is echoed back in both the response
// header and a cookie so either transport works.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(sessionHeader)
		if sessionID == "" {
			if cookie, err := c.Cookie(sessionCookie); err == nil {
				sessionID = cookie
			}
		}
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		c.Set("session_id", sessionID)
		c.Header(sessionHeader, sessionID)
		c.SetCookie(sessionCookie, sessionID, sessionMaxAge, "/", "", false, true)

		c.Next()
	}
}

// GetSessionID extracts the cart session id from gin context
func GetSessionID(c *gin.Context) string {
	if sessionID, exists := c.Get("session_id"); exists {
		return sessionID.(string)
	}
	return ""
}
