package middleware

import (
	"net/http"

	"gigchat/utils"

	"github.com/gin-gonic/gin"
)

// RequireRole rejects callers whose role, set by JWTAuthMiddleware, is not one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		utils.JSONError(c, http.StatusForbidden, "FORBIDDEN", "This action is not available for your role", nil)
	}
}
