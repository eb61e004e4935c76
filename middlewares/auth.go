package middlewares

import (
	"context"
	"net/http"
	"strings"

	"prago-api/models"
	"prago-api/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// UserIDKey holds the authenticated user id (int64) in the gin context.
const UserIDKey = "userID"

type TokenParser interface {
	Parse(token string, purpose utils.TokenPurpose) (*utils.Claims, error)
}

type UserGetter interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// AuthMiddleware requires a valid "Authorization: Bearer <access token>".
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication credentials were not provided"})
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(token), utils.PurposeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is invalid or expired"})
			return
		}
		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// UserID returns the id set by AuthMiddleware.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// StaffOnly must run after AuthMiddleware.
func StaffOnly(users UserGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		user, err := users.GetByID(c.Request.Context(), id)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", id).Msg("staff check failed to load user")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to perform this action"})
			return
		}
		if !user.IsActive || !user.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to perform this action"})
			return
		}
		c.Next()
	}
}
