package testutil

import (
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/shridhar/dispatch-api/middleware"
)

// TestUserHeader names the Auth0 subject a request is made as when using HeaderAuth
const TestUserHeader = "X-Test-User"

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, role string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  "https://test.auth0.com/",
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Role: role,
		},
	}
}

// SetMockAuthContext sets what EnsureValidToken would leave on the context
func SetMockAuthContext(c *gin.Context, userID, role string) {
	c.Set(middleware.ContextUserID, userID)
	c.Set(middleware.ContextAccessToken, "mock-token")
	c.Set(middleware.ContextValidatedClaims, MockValidatedClaims(userID, role))
}

// MockAuth authenticates every request as auth0ID
func MockAuth(auth0ID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetMockAuthContext(c, auth0ID, role)
		c.Next()
	}
}

// HeaderAuth authenticates each request as the subject in TestUserHeader,
// so one router can serve customers, technicians and admins.
func HeaderAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetHeader(TestUserHeader)
		if subject == "" {
			c.AbortWithStatusJSON(401, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Failed to validate JWT.",
				},
			})
			return
		}
		SetMockAuthContext(c, subject, "")
		c.Next()
	}
}

// CreateTestContext creates a test Gin context
func CreateTestContext() (*gin.Context, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	c, engine := gin.CreateTestContext(nil)
	return c, engine
}
