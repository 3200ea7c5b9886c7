package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/utils"
)

const (
	UserIDKey   = "userID"
	UserRoleKey = "userRole"
)

// AuthMiddleware validates the bearer token. With a db it also rejects
// tokens of deleted or deactivated accounts, so a status change applies
// before the token expires.
func AuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := utils.ValidateJWT(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if db != nil {
			var user models.User
			err := db.WithContext(c.Request.Context()).Select("id", "is_active").First(&user, claims.UserID).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				return
			case err != nil:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Could not verify account"})
				return
			case !user.IsActive:
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is deactivated"})
				return
			}
		}

		// Set user info in the context for handlers to use
		c.Set(UserIDKey, claims.UserID)
		c.Set(UserRoleKey, claims.Role)

		c.Next()
	}
}

// bearerToken reads the Authorization header. EventSource can't set headers,
// so the SSE stream may pass ?token= instead.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c.Request.Method == http.MethodGet {
		return c.Query("token")
	}
	return ""
}

// RequireRoles lets the request through only for the listed roles.
// Must run after AuthMiddleware.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		if !allowed[c.GetString(UserRoleKey)] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Permission denied."})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user id and role.
func CurrentUser(c *gin.Context) (uint, string) {
	return c.GetUint(UserIDKey), c.GetString(UserRoleKey)
}
