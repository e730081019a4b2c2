package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/careassist/hospital-assistant/internal/session"
)

const (
	// HeaderUserID carries the caller's user context
	HeaderUserID = "X-User-ID"

	// UserIDKey is the gin context key holding the resolved user context
	UserIDKey = "user_id"
)

// UserContext resolves the user context from the X-User-ID header, or the
// "user" query parameter for browser WebSocket clients that cannot set
// headers. Missing ids resolve to "anonymous".
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderUserID)
		if id == "" {
			id = c.Query("user")
		}
		c.Set(UserIDKey, session.Namespace(id))
		c.Next()
	}
}

// UserID returns the user context set by UserContext
func UserID(c *gin.Context) string {
	if id := c.GetString(UserIDKey); id != "" {
		return id
	}
	return session.Namespace("")
}
