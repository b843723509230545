package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classlive/backend/internal/auth"
	"github.com/classlive/backend/internal/models"
	"github.com/classlive/backend/pkg/response"
)

// JWT returns a middleware that validates the bearer token and stores the
// authenticated principal in the gin context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(auth.ContextPrincipal, claims.Principal())
		c.Next()
	}
}

// PrincipalFrom returns the authenticated principal set by JWT.
func PrincipalFrom(c *gin.Context) models.Principal {
	return c.MustGet(auth.ContextPrincipal).(models.Principal)
}

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		val, ok := c.Get(auth.ContextPrincipal)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		p, _ := val.(models.Principal)
		if _, ok := allowed[p.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
