package testutil

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shridhar/dispatch-api/config"
	"github.com/shridhar/dispatch-api/controllers"
	"github.com/shridhar/dispatch-api/middleware"
	"github.com/shridhar/dispatch-api/models"
	"github.com/shridhar/dispatch-api/services"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPin is the Happy PIN every booking created through NewEngine carries
const TestPin = "246810"

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// MustSetTestEnvironment sets the variables config.Load needs in test mode.
// Use this in suite setup functions.
func MustSetTestEnvironment(t *testing.T) *config.Config {
	t.Helper()

	for key, value := range map[string]string{
		"GO_ENV":         "test",
		"AUTH0_DOMAIN":   "test.auth0.com",
		"AUTH0_AUDIENCE": "https://api.test.com",
		"PORT":           "8080",
		"AWS_S3_BUCKET":  "",
	} {
		t.Setenv(key, value)
	}
	RequireTestEnvironment(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

// PrintEnvironmentInfo prints the current test environment configuration.
// Useful for debugging test environment issues.
func PrintEnvironmentInfo() {
	fmt.Printf("Test Environment Info:\n")
	fmt.Printf("  GO_ENV: %s\n", os.Getenv("GO_ENV"))
	fmt.Printf("  DATABASE_URL: %s\n", maskDatabaseURL(os.Getenv("DATABASE_URL")))
	fmt.Printf("  PORT: %s\n", os.Getenv("PORT"))
}

// maskDatabaseURL masks sensitive parts of the database URL for safe printing
func maskDatabaseURL(url string) string {
	if url == "" {
		return "(not set)"
	}
	if len(url) <= 20 {
		return url
	}
	if strings.Contains(url, "test") {
		return url[:20] + "... [contains 'test']"
	}
	return url[:20] + "... [WARNING: may not be test DB]"
}

// NewTestDB opens a migrated in-memory SQLite database and installs it as config.DB
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	config.SetDB(db)
	return db
}

// NewEngine builds a booking engine over db whose bookings always get TestPin
func NewEngine(db *gorm.DB, notifier services.Notifier, opts services.EngineOptions) *services.BookingEngine {
	directory := services.NewGormDirectory(db)
	return services.NewBookingEngine(services.EngineDeps{
		Store:       services.NewBookingStore(db),
		Locker:      services.NewKeyedLocker(),
		Reasons:     directory,
		Technicians: directory,
		Categories:  directory,
		Notifier:    notifier,
		Log:         zap.NewNop(),
		Pins:        func() (string, error) { return TestPin, nil },
	}, opts)
}

// NewRouter mounts the authenticated API the way the server does, with
// authenticate standing in for token validation.
func NewRouter(db *gorm.DB, engine *services.BookingEngine, images services.ImageService, authenticate gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/uploads/:filename", controllers.GetUploadedImage)

		authed := v1.Group("", authenticate, middleware.ResolveActor(db))
		{
			authed.GET("/users/me", controllers.GetMyProfile)
			authed.PUT("/users/me/availability", middleware.RequireRole(models.RoleTechnician), controllers.UpdateMyAvailability)
			authed.GET("/categories", controllers.ListCategories)
			authed.GET("/reasons", controllers.ListReasons)
			authed.POST("/reasons", middleware.AdminOnly(), controllers.CreateReason)
			authed.DELETE("/reasons/:id", middleware.AdminOnly(), controllers.DeactivateReason)

			controllers.NewBookingController(engine, images, zap.NewNop()).RegisterRoutes(authed)
		}
	}
	return router
}

// SeedUser inserts a registered user. Technicians are created verified and online.
func SeedUser(t *testing.T, db *gorm.DB, auth0ID string, role models.Role) models.User {
	t.Helper()

	user := models.User{
		Auth0ID: auth0ID,
		Name:    auth0ID,
		Email:   strings.NewReplacer("|", ".").Replace(auth0ID) + "@example.com",
		Role:    role,
	}
	if role == models.RoleTechnician {
		user.IsVerified = true
		user.IsOnline = true
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// SeedCategory inserts an active category
func SeedCategory(t *testing.T, db *gorm.DB, name string) models.Category {
	t.Helper()

	category := models.Category{Name: name, IsActive: true}
	require.NoError(t, db.Create(&category).Error)
	return category
}
