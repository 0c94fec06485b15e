package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-sync/pkg/errors"
	"github.com/noah-isme/sma-enrollment-sync/pkg/response"
)

// ContextOperatorKey is the gin context key storing operator claims.
const ContextOperatorKey = "currentOperator"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.OperatorClaims, error)
}

// JWT protects routes by requiring a valid operator token.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextOperatorKey, claims)
		c.Next()
	}
}

// Operator returns the authenticated operator, if any.
func Operator(c *gin.Context) string {
	value, exists := c.Get(ContextOperatorKey)
	if !exists {
		return ""
	}
	claims, ok := value.(*models.OperatorClaims)
	if !ok {
		return ""
	}
	return claims.Operator
}
