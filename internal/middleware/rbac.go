package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
	"github.com/mauriciomholiveira/cobranca-api/pkg/response"
)

func claims(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	parsed, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return parsed
}

// RequireAdmin blocks non-admin professors.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		current := claims(c)
		if current == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !current.Admin {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "admin access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireCanMessage blocks professors without the messaging permission.
// Admins always pass.
func RequireCanMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		current := claims(c)
		if current == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !current.Admin && !current.CanMessage {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "messaging permission required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
