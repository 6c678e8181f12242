package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ap0ught/familyman/logger"
	"github.com/ap0ught/familyman/models"
)

// sqlitePragmas enable WAL and a busy timeout so parallel workers queue on
// the single sqlite writer instead of failing with "database is locked".
const sqlitePragmas = "_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"

func withPragmas(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return "file:" + dsn + "?" + sqlitePragmas
}

// InitGormDB initializes and returns a GORM database instance
func InitGormDB(dataSourceName string, maxOpenConns int, log *logger.Logger) (*gorm.DB, error) {
	gormLogger := gormlogger.New(
		log,
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(withPragmas(dataSourceName)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database %s unavailable: %w", dataSourceName, err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 1
	}
	sqlDB.SetMaxIdleConns(maxOpenConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("database: GORM initialized", "path", dataSourceName)
	return db, nil
}

// AutoMigrateModels migrates the photo, face and person schemas.
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Person{},
		&models.Photo{},
		&models.Face{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	return nil
}

// Open is InitGormDB followed by AutoMigrateModels.
func Open(dataSourceName string, maxOpenConns int, log *logger.Logger) (*gorm.DB, error) {
	db, err := InitGormDB(dataSourceName, maxOpenConns, log)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrateModels(db); err != nil {
		return nil, err
	}
	return db, nil
}
