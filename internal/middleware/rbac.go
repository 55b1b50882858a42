package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/jwt-auth-api/internal/models"
	appErrors "github.com/noah-isme/jwt-auth-api/pkg/errors"
	"github.com/noah-isme/jwt-auth-api/pkg/response"
)

// RequireRoles enforces that the caller holds at least one of the listed
// roles. Role claims are matched case-insensitively.
func RequireRoles(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		for _, role := range claims.Roles {
			for _, a := range allowed {
				if strings.EqualFold(role, a) {
					c.Next()
					return
				}
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
