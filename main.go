package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shridhar/dispatch-api/config"
	"github.com/shridhar/dispatch-api/controllers"
	"github.com/shridhar/dispatch-api/middleware"
	"github.com/shridhar/dispatch-api/models"
	"github.com/shridhar/dispatch-api/services"
	"github.com/shridhar/dispatch-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := config.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("Starting Dispatch API server...")

	if err := config.ConnectDatabase(cfg.GetDatabaseURL(), log); err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	db := config.GetDB()
	if err := config.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database migration completed successfully")

	ctx := context.Background()
	locker := newLocker(cfg, log)
	notifier, closeNotifier := newNotifier(cfg, log)
	defer closeNotifier()
	images := newImageService(ctx, cfg, log)

	directory := services.NewGormDirectory(db)
	engine := services.NewBookingEngine(services.EngineDeps{
		Store:       services.NewBookingStore(db),
		Locker:      locker,
		Reasons:     directory,
		Technicians: directory,
		Categories:  directory,
		Notifier:    notifier,
		Log:         log.Named("engine"),
	}, services.EngineOptions{
		DispatcherID:                cfg.DispatcherUserID,
		RequirePaymentForCompletion: cfg.RequirePaymentForCompletion,
		ScheduleGrace:               cfg.ScheduleGrace,
	})

	bookings := controllers.NewBookingController(engine, images, log.Named("http"))
	router := setupRouter(cfg, log, db, bookings, middleware.EnsureValidToken(cfg, log))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("Server is running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
}

// setupRouter builds the gin engine. authenticate validates the bearer token
// and must set the Auth0 subject on the context.
func setupRouter(cfg *config.Config, log *zap.Logger, db *gorm.DB, bookings *controllers.BookingController, authenticate gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(log.Named("http")))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)
		v1.GET("/uploads/:filename", controllers.GetUploadedImage)

		// Registration only needs a valid token; everything else needs a profile.
		v1.POST("/users", authenticate, controllers.CreateUser)

		authed := v1.Group("", authenticate, middleware.ResolveActor(db))
		{
			authed.GET("/users/me", controllers.GetMyProfile)
			authed.PUT("/users/me", controllers.UpdateMyProfile)
			authed.PUT("/users/me/availability", middleware.RequireRole(models.RoleTechnician), controllers.UpdateMyAvailability)

			authed.GET("/categories", controllers.ListCategories)
			authed.GET("/reasons", controllers.ListReasons)
			authed.POST("/reasons", middleware.AdminOnly(), controllers.CreateReason)
			authed.DELETE("/reasons/:id", middleware.AdminOnly(), controllers.DeactivateReason)

			admin := authed.Group("/admin", middleware.AdminOnly())
			{
				admin.GET("/technicians", controllers.ListTechnicians)
				admin.PUT("/technicians/:id/verify", controllers.VerifyTechnician)
			}

			bookings.RegisterRoutes(authed)
		}
	}

	return router
}

// newLocker serialises booking mutations across replicas through Redis when
// REDIS_ADDR is set, and within this process otherwise.
func newLocker(cfg *config.Config, log *zap.Logger) services.BookingLocker {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, using in-process booking locks")
		return services.NewKeyedLocker()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Info("Using Redis booking locks", zap.String("addr", cfg.RedisAddr))
	return services.NewRedisLocker(client, cfg.BookingLockTTL, log.Named("locker"))
}

func newNotifier(cfg *config.Config, log *zap.Logger) (services.Notifier, func()) {
	if cfg.RabbitMQURL == "" {
		log.Info("RABBITMQ_URL not set, notifications are only logged")
		return services.NewLogNotifier(log.Named("notify")), func() {}
	}
	notifier, err := services.NewAMQPNotifier(cfg.RabbitMQURL, log.Named("notify"))
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	return notifier, notifier.Close
}

func newImageService(ctx context.Context, cfg *config.Config, log *zap.Logger) services.ImageService {
	utils.UploadDir = cfg.UploadDir
	if !cfg.UsesS3() {
		log.Info("AWS_S3_BUCKET not set, storing evidence on local disk", zap.String("dir", cfg.UploadDir))
		return services.NewLocalImageService(cfg.UploadDir)
	}
	s3Service, err := services.NewS3Service(ctx, cfg, log.Named("s3"))
	if err != nil {
		log.Fatal("Failed to initialize S3 service", zap.Error(err))
	}
	return services.NewS3ImageService(s3Service)
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Dispatch API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	tables, err := db.Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
