package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-enrollment-sync/internal/middleware"
)

// operator returns the authenticated operator of the request.
func operator(c *gin.Context) string {
	return middleware.Operator(c)
}
