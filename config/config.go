package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL        string        `envconfig:"DATABASE_URL"`
	Port               string        `envconfig:"PORT" default:"8080"`
	GoEnv              string        `envconfig:"GO_ENV" default:"development"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"info"`
	Auth0Domain        string        `envconfig:"AUTH0_DOMAIN"`
	Auth0Audience      string        `envconfig:"AUTH0_AUDIENCE"`
	AWSRegion          string        `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSS3Bucket        string        `envconfig:"AWS_S3_BUCKET"`
	AWSAccessKeyID     string        `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string        `envconfig:"AWS_SECRET_ACCESS_KEY"`
	UploadDir          string        `envconfig:"UPLOAD_DIR" default:"./uploads"`
	AllowedOrigins     []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RabbitMQURL        string        `envconfig:"RABBITMQ_URL"`
	RedisAddr          string        `envconfig:"REDIS_ADDR"`
	RedisPassword      string        `envconfig:"REDIS_PASSWORD"`
	RedisDB            int           `envconfig:"REDIS_DB" default:"0"`
	BookingLockTTL     time.Duration `envconfig:"BOOKING_LOCK_TTL" default:"10s"`

	// Dispatch settings
	DispatcherUserID            uint          `envconfig:"DISPATCHER_USER_ID"`
	RequirePaymentForCompletion bool          `envconfig:"REQUIRE_PAYMENT_FOR_COMPLETION" default:"false"`
	ScheduleGrace               time.Duration `envconfig:"SCHEDULE_GRACE" default:"1m"`
}

var cfg *Config

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Environment-specific file first, then .env. Neither is required:
	// deployed environments set variables directly.
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		_ = godotenv.Load()
	}

	config := &Config{}
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	cfg = config
	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.IsProduction() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !c.IsTest() && (c.Auth0Domain == "" || c.Auth0Audience == "") {
		return fmt.Errorf("AUTH0_DOMAIN and AUTH0_AUDIENCE are required")
	}
	if c.ScheduleGrace < 0 {
		return fmt.Errorf("SCHEDULE_GRACE must not be negative")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// GetDatabaseURL returns the database URL
func (c *Config) GetDatabaseURL() string {
	return c.DatabaseURL
}

// UsesS3 reports whether evidence images go to S3 rather than local disk.
func (c *Config) UsesS3() bool {
	return c.AWSS3Bucket != ""
}

// GetConfig returns the configuration loaded by Load
func GetConfig() *Config {
	return cfg
}

// SetConfig replaces the loaded configuration (used by tests)
func SetConfig(c *Config) {
	cfg = c
}
