// Command migrate creates or upgrades the sqlite database used by the
// feedback engine.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/coursepulse/peerfeedback/internal/db"
	"github.com/coursepulse/peerfeedback/internal/logger"
	"github.com/coursepulse/peerfeedback/internal/utils"
)

func main() {
	logger.Init(utils.SafeEnv("PEERFEEDBACK_LOG_LEVEL", "info"))
	defer func() {
		_ = logger.Log.Sync()
	}()

	sqlitePath := utils.SafeEnv("PEERFEEDBACK_SQLITE_PATH", "data/peerfeedback.db")
	migrationsDir := utils.SafeEnv("PEERFEEDBACK_MIGRATIONS_DIR", "")

	if err := run(sqlitePath, migrationsDir); err != nil {
		logger.Log.Fatal("migration failed", zap.Error(err))
	}
	logger.Log.Info("migrations applied", zap.String("path", sqlitePath))
}

func run(sqlitePath, migrationsDir string) error {
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0o755); err != nil {
		return fmt.Errorf("create sqlite dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(sqlitePath))
	sqliteDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() {
		if cerr := sqliteDB.Close(); cerr != nil {
			logger.Log.Warn("close sqlite db", zap.Error(cerr))
		}
	}()

	if err := db.RunMigrations(sqliteDB, migrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if _, err := db.NewSQLiteStore(sqliteDB); err != nil {
		return fmt.Errorf("init sqlite store: %w", err)
	}
	return nil
}
