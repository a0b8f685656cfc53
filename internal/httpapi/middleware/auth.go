// Package middleware provides HTTP middleware for jefferson: API key
// authentication, which guards only the admin API, and request logging,
// which is installed on both the admin and the JSON-RPC listeners. The
// JSON-RPC entry point has no authentication.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dpays/jefferson/internal/httpapi/models"
)

// RequireAPIKey enforces a simple shared-secret API key on the admin API.
// Clients must send `X-API-Key: <key>`.
func RequireAPIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-API-Key")
		if expected == "" || got == expected {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
	}
}
