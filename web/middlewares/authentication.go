package middlewares

import (
	"net/http"
	"strings"

	"axiapac.com/workforce/security"
	"axiapac.com/workforce/web/common"
	"github.com/gin-gonic/gin"
)

const (
	identityKey = "identity"
	cookieName  = "workforce.ApplicationCookie"
)

// Authentication checks for a valid Bearer token, falling back to the
// application cookie, and stores the identity on the context.
func Authentication(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// Try to get from cookie
			cookie, err := c.Cookie(cookieName)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, common.NewErrorResponse("missing token"))
				return
			}

			tokenStr = cookie
		} else {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, common.NewErrorResponse("malformed authorization header"))
				return
			}

			tokenStr = parts[1]
		}

		claims, err := security.ParseIdentityToken(tokenStr, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, common.NewErrorResponse("invalid or expired token"))
			return
		}

		c.Set(identityKey, claims.Identity)
		c.Next()
	}
}

// RequireRole rejects identities without role. It must run after Authentication.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok || identity.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, common.NewErrorResponse("insufficient permissions"))
			return
		}
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (security.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return security.Identity{}, false
	}
	identity, ok := v.(security.Identity)
	return identity, ok
}
