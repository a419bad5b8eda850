package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key RequireSession stores the user id under.
const UserIDKey = "user_id"

// SessionChecker is the part of the session guard the middleware depends on.
type SessionChecker interface {
	CheckAuth(ctx context.Context) bool
	UserID() string
}

// RequireSession aborts with 401 and a redirect hint unless the session
// checks out. Fresh sessions are answered from the guard's cache.
func RequireSession(s SessionChecker, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.CheckAuth(c.Request.Context()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired", "redirect": loginPath})
			return
		}
		if id := s.UserID(); id != "" {
			c.Set(UserIDKey, id)
		}
		c.Next()
	}
}

// limitKey prefers the signed-in user, otherwise the client IP.
func limitKey(c *gin.Context) string {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return "user:" + id
		}
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
