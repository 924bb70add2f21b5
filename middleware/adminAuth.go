package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"gigchat/config"
	"gigchat/utils"

	"github.com/gin-gonic/gin"
)

// JWTAuthAdminMiddleware guards admin endpoints with the configured static
// token. Admin access is disabled when ADMIN_TOKEN is empty.
func JWTAuthAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := config.AppConfig.AdminToken
		authHeader := c.GetHeader("Authorization")
		if expected == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			utils.JSONError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid Authorization header", nil)
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(tokenString), []byte(expected)) != 1 {
			utils.JSONError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized admin access", nil)
			return
		}

		c.Set("isAdmin", true)
		c.Next()
	}
}
