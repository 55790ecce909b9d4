package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shridhar/dispatch-api/models"
	"github.com/shridhar/dispatch-api/services"
	"gorm.io/gorm"
)

// ContextActor holds the services.Actor of the current request
const ContextActor = "actor"

// ResolveActor loads the registered user behind the validated token and
// stores it as the request's actor. Must run after EnsureValidToken.
func ResolveActor(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth0ID, err := GetUserID(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Could not extract user information",
				},
			})
			return
		}

		var user models.User
		err = db.WithContext(c.Request.Context()).Where("auth0_id = ?", auth0ID).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "USER_NOT_REGISTERED",
					"message": "User profile not found. Please create a profile first.",
				},
			})
			return
		}
		if err != nil {
			c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to load user",
				},
			})
			return
		}

		c.Set(ContextActor, services.Actor{ID: user.ID, Role: user.Role})
		c.Next()
	}
}

// GetActor returns the actor stored by ResolveActor
func GetActor(c *gin.Context) (services.Actor, error) {
	value, exists := c.Get(ContextActor)
	if !exists {
		return services.Actor{}, &AuthError{Code: "MISSING_ACTOR", Message: "Actor not found in context"}
	}
	actor, ok := value.(services.Actor)
	if !ok {
		return services.Actor{}, &AuthError{Code: "INVALID_ACTOR", Message: "Actor is not in the expected format"}
	}
	return actor, nil
}

// RequireRole lets the request through only for actors holding one of roles
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := GetActor(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Role not found for this request",
				},
			})
			return
		}

		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Access denied: insufficient permissions",
			},
		})
	}
}

// AdminOnly requires the admin (dispatcher) role
func AdminOnly() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}
