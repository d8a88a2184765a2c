package middleware

import (
	"net/http"
	"strings"

	"noircafe-backend/models"
	"noircafe-backend/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserUID   = "user_uid"
	ContextUserEmail = "user_email"
	ContextUserRole  = "user_role"
)

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Abort(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			utils.Abort(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := utils.ValidateToken(token)
		if err != nil {
			utils.Abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(ContextUserUID, claims.UID)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			utils.Abort(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

// StaffMiddleware admits admins, managers and baristas.
func StaffMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !models.IsStaffRole(CurrentRole(c)) {
			utils.Abort(c, http.StatusForbidden, "Staff access required")
			return
		}
		c.Next()
	}
}

func CurrentUID(c *gin.Context) string {
	return c.GetString(ContextUserUID)
}

func CurrentRole(c *gin.Context) string {
	return c.GetString(ContextUserRole)
}

func IsAdmin(c *gin.Context) bool {
	return CurrentRole(c) == models.RoleAdmin
}

// CanAccessUser reports whether the caller may act on uid's data.
func CanAccessUser(c *gin.Context, uid string) bool {
	return CurrentUID(c) == uid || IsAdmin(c)
}
