// Package middleware provides authentication and request validation middleware for the Gin web framework.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"qrfeedback/internal/models"
)

// Session keys for storing caller information
const (
	// UserIDKey is the key used to store the staff user ID in session
	UserIDKey = "user_id"
	// UsernameKey is the key used to store the username in session
	UsernameKey = "username"
	// IsAdminKey is the key used to mark an admin session
	IsAdminKey = "is_admin"
	// IdentityKey is the Gin context key holding the resolved Identity
	IdentityKey = "identity"
)

// FloorLookup loads the current floor assignments for a staff user. Floors
// are read per request so assignment changes take effect without re-login.
type FloorLookup interface {
	GetFloorsForUser(ctx context.Context, userID int) ([]int, error)
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": "Authentication required",
		"code":  "UNAUTHORIZED",
	})
	c.Abort()
}

// sessionUserID extracts and normalizes the user ID stored in the session.
func sessionUserID(session sessions.Session) (int, bool) {
	userID := session.Get(UserIDKey)
	if userID == nil {
		return 0, false
	}
	if id, ok := userID.(int); ok {
		return id, true
	}
	// JSON numbers round-trip through some stores as float64
	if f, ok := userID.(float64); ok {
		return int(f), true
	}
	return 0, false
}

// RequireAdmin returns a middleware that only passes admin sessions.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		isAdmin, ok := session.Get(IsAdminKey).(bool)
		if !ok || !isAdmin {
			unauthorized(c)
			return
		}

		username, _ := session.Get(UsernameKey).(string)
		c.Set(IdentityKey, models.Identity{
			IsAdmin:  true,
			Username: username,
		})
		c.Next()
	}
}

// RequireStaff returns a middleware that passes staff sessions and admin
// sessions. For staff it resolves the current floor assignments and attaches
// the full identity to the request context.
func RequireStaff(floors FloorLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		if isAdmin, ok := session.Get(IsAdminKey).(bool); ok && isAdmin {
			username, _ := session.Get(UsernameKey).(string)
			c.Set(IdentityKey, models.Identity{IsAdmin: true, Username: username})
			c.Next()
			return
		}

		userID, ok := sessionUserID(session)
		if !ok {
			unauthorized(c)
			return
		}
		username, ok := session.Get(UsernameKey).(string)
		if !ok || username == "" {
			unauthorized(c)
			return
		}

		assigned, err := floors.GetFloorsForUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load floor assignments",
				"code":  "INTERNAL_SERVER_ERROR",
			})
			c.Abort()
			return
		}

		c.Set(IdentityKey, models.Identity{
			UserID:   userID,
			Username: username,
			Floors:   assigned,
		})
		c.Next()
	}
}

// IdentityFromContext returns the Identity attached by the auth middleware.
func IdentityFromContext(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}
