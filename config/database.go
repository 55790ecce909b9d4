package config

import (
	"fmt"
	"strings"

	"github.com/shridhar/dispatch-api/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSQLitePath = "dispatch.db"

var DB *gorm.DB

// ConnectDatabase opens the database named by databaseURL.
// postgres:// and postgresql:// URLs use PostgreSQL, anything else is a SQLite path.
func ConnectDatabase(databaseURL string, log *zap.Logger) error {
	if databaseURL == "" {
		databaseURL = defaultSQLitePath
		log.Info("DATABASE_URL not set, using local SQLite", zap.String("path", databaseURL))
	}

	db, err := gorm.Open(dialectorFor(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if isSQLite(databaseURL) {
		// SQLite allows one writer; a single connection also keeps :memory: databases shared.
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database instance: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	DB = db
	log.Info("Database connection established", zap.String("driver", db.Dialector.Name()))
	return nil
}

// Migrate creates or updates every table the API uses
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// SetDB replaces the database instance (used by tests)
func SetDB(db *gorm.DB) {
	DB = db
}

func dialectorFor(databaseURL string) gorm.Dialector {
	if isSQLite(databaseURL) {
		return sqlite.Open(databaseURL)
	}
	return postgres.Open(databaseURL)
}

func isSQLite(databaseURL string) bool {
	return !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://")
}
