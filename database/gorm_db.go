package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/framesys/models"
)

// slogWriter adapts gorm's Printf-style logger onto slog
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// InitGormDB initializes and returns a GORM database instance
func InitGormDB(dataSourceName string, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.Default()
	}
	gormLogger := logger.New(
		slogWriter{logger: log.With("component", "gorm")},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dataSourceName), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	// enable write-ahead logging so library reads don't block frame saves
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		log.Warn("failed to set WAL mode", "error", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	// sqlite serialises writers; a single connection avoids SQLITE_BUSY under the frame mirror
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("GORM database initialized", "path", dataSourceName)
	return db, nil
}

// AutoMigrateModels migrates the project and frame schemas
func AutoMigrateModels(db *gorm.DB, log *slog.Logger) error {
	err := db.AutoMigrate(
		&models.Project{},
		&models.Frame{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	if log != nil {
		log.Info("GORM AutoMigrate completed")
	}
	return nil
}
