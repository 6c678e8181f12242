package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gorm.io/gorm"

	"github.com/ap0ught/familyman/config"
	"github.com/ap0ught/familyman/database"
	"github.com/ap0ught/familyman/logger"
)

// openStore takes the run lock next to the database and opens it. The
// returned func closes the database and releases the lock.
func openStore(cfg config.Config, log *logger.Logger) (*gorm.DB, func(), error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	lockPath := cfg.DatabasePath + ".lock"
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("another familyman run is using %s", cfg.DatabasePath)
	}

	db, err := database.Open(cfg.DatabasePath, cfg.DatabaseMaxOpenConns, log)
	if err != nil {
		_ = lock.Unlock()
		return nil, nil, err
	}

	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release database lock", "path", lockPath, "error", err)
		}
	}
	return db, closeFn, nil
}
