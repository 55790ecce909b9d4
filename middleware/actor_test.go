package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shridhar/dispatch-api/models"
	"github.com/shridhar/dispatch-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupActorTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func TestResolveActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupActorTestDB(t)

	tech := models.User{Auth0ID: "auth0|tech", Name: "Tech", Email: "tech@example.com", Role: models.RoleTechnician}
	require.NoError(t, db.Create(&tech).Error)

	tests := []struct {
		name           string
		auth0ID        string
		expectedStatus int
		expectedActor  *services.Actor
	}{
		{
			name:           "registered user becomes the actor",
			auth0ID:        "auth0|tech",
			expectedStatus: http.StatusOK,
			expectedActor:  &services.Actor{ID: tech.ID, Role: models.RoleTechnician},
		},
		{
			name:           "unregistered user is refused",
			auth0ID:        "auth0|stranger",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "missing subject is unauthorized",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *services.Actor
			router := gin.New()
			router.Use(func(c *gin.Context) {
				if tt.auth0ID != "" {
					c.Set("user_id", tt.auth0ID)
				}
				c.Next()
			})
			router.Use(ResolveActor(db))
			router.GET("/test", func(c *gin.Context) {
				actor, err := GetActor(c)
				require.NoError(t, err)
				seen = &actor
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedActor, seen)
		})
	}
}

func TestGetActor(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, err := GetActor(c)
	assert.Error(t, err, "No actor before ResolveActor runs")

	c.Set(ContextActor, "admin")
	_, err = GetActor(c)
	assert.Error(t, err, "Wrong type should be rejected")

	c.Set(ContextActor, services.Actor{ID: 3, Role: models.RoleAdmin})
	actor, err := GetActor(c)
	require.NoError(t, err)
	assert.Equal(t, uint(3), actor.ID)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		actor          *services.Actor
		handler        gin.HandlerFunc
		expectedStatus int
	}{
		{"admin passes AdminOnly", &services.Actor{ID: 1, Role: models.RoleAdmin}, AdminOnly(), http.StatusOK},
		{"customer blocked by AdminOnly", &services.Actor{ID: 2, Role: models.RoleCustomer}, AdminOnly(), http.StatusForbidden},
		{"technician in role list", &services.Actor{ID: 3, Role: models.RoleTechnician}, RequireRole(models.RoleAdmin, models.RoleTechnician), http.StatusOK},
		{"no actor", nil, RequireRole(models.RoleCustomer), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				if tt.actor != nil {
					c.Set(ContextActor, *tt.actor)
				}
				c.Next()
			})
			router.GET("/test", tt.handler, func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
