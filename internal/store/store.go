// Package store owns the gateway's single SQLite database: opening it,
// running schema migrations, and exposing the *gorm.DB connection the rest
// of the process builds on.
package store

import (
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clads-dev/clads-gateway/internal/store/migrate"
)

// Open connects to the SQLite database at path and brings its schema up to
// migrate.CurrentVersion(). A migration failure leaves the database at the
// last successfully applied version and returns a non-nil error; the caller
// is expected to treat this as fatal (cmd/gateway exits 2).
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	if err := migrate.Up(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("database ready", "path", path, "schema_version", migrate.CurrentVersion())
	return db, nil
}
