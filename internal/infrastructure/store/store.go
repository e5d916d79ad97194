package store

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taskstream/backend/internal/domain/task"
	"github.com/taskstream/backend/pkg/config"
)

// Open connects the task store. The default DSN is an in-process memory
// database: authoritative for the lifetime of the process, gone on restart.
func Open(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store handle: %w", err)
	}
	// A single connection keeps every memory-DSN session on the same
	// database and serializes writers, so a reader never observes a
	// half-applied update. The connection must never be recycled: a memory
	// database only lives while a connection holds it open.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := db.AutoMigrate(&task.Task{}, &task.Activity{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	return db, nil
}
