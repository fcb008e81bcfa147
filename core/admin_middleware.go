package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OperatorOnly admits requests bearing the automation secret.
func OperatorOnly(bypass *BypassStrategy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !bypass.Matches(c.GetHeader("Authorization")) {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "operator credentials required")
			c.Abort()
			return
		}
		c.Next()
	}
}
