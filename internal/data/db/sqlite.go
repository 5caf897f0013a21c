package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
)

// OpenSQLite opens a SQLite database for local runs and tests. A path of
// ":memory:" or "" gives a private in-memory database. The pool is pinned to
// one connection since SQLite serializes writers anyway.
func OpenSQLite(logg *logger.Logger, path string) (*gorm.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	lvl := gormLogger.Warn
	if logg == nil {
		lvl = gormLogger.Silent
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger().LogMode(lvl),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if logg != nil {
		logg.Info("sqlite opened", "path", path)
	}
	return db, nil
}
