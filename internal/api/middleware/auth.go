package middleware

import (
	"strings"

	"geofeed/internal/services"
	"geofeed/pkg/response"

	"github.com/gin-gonic/gin"
)

// Auth validates the bearer token and stores the caller's user id in the
// gin context under "user_id".
func Auth(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header is required")
			return
		}

		tokenString := strings.Replace(authHeader, "Bearer ", "", 1)
		userID, err := auth.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

// UserID reads the authenticated user id set by Auth.
func UserID(c *gin.Context) string {
	id, _ := c.Get("user_id")
	userID, _ := id.(string)
	return userID
}
