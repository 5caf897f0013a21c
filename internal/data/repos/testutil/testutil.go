package testutil

import (
	"context"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/candidate-intel-backend/internal/data/db"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a fresh, migrated in-memory SQLite database owned by tb.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := db.OpenSQLite(nil, ":memory:")
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func Ctx() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}
