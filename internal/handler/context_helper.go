package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mauriciomholiveira/cobranca-api/internal/middleware"
	"github.com/mauriciomholiveira/cobranca-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// scopeProfessorID returns the professor filter to apply for the current
// caller: admins may pass any professor_id (or none), everyone else is
// pinned to their own data.
func scopeProfessorID(c *gin.Context, requested string) string {
	current := claimsFromContext(c)
	if current == nil {
		return requested
	}
	if current.Admin {
		return requested
	}
	return current.ProfessorID
}
