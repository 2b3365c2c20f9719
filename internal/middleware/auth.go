package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/session"
)

const userContextKey = "sessionUser"

// AuthMiddleware resolves the caller's identity from the Authorization header
// using the session provider and aborts unauthenticated requests.
func AuthMiddleware(sessions session.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		user, err := sessions.UserFromToken(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
			return
		}

		c.Set(userContextKey, *user)
		c.Next()
	}
}

// UserFromContext returns the authenticated user set by AuthMiddleware.
func UserFromContext(c *gin.Context) (session.User, bool) {
	val, ok := c.Get(userContextKey)
	if !ok {
		return session.User{}, false
	}
	user, ok := val.(session.User)
	return user, ok
}

// SetUser injects an authenticated user into the gin context. Exposed for
// handler tests.
func SetUser(c *gin.Context, user session.User) {
	c.Set(userContextKey, user)
}
