package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/tickerlab/backend/internal/config"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const sqliteScheme = "sqlite://"

// Connect opens the database named by DATABASE_URL.
// "sqlite://<path>" selects the embedded driver (local runs, CLI, tests); anything else is Postgres.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	if strings.HasPrefix(cfg.DB.URL, sqliteScheme) {
		return OpenSQLite(strings.TrimPrefix(cfg.DB.URL, sqliteScheme), LogLevel(cfg.Server.Env))
	}
	return ConnectPostgres(cfg)
}

// OpenSQLite opens and migrates an embedded database; ":memory:" gives a throwaway one
func OpenSQLite(path string, level gormLogger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// A single connection keeps in-memory databases shared and serializes writers
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
