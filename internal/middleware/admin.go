package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminRequired lets through operators, whose roles are negative.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists || role.(int) >= 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}
