// Package migrate runs the gateway's schema migrations.
//
// golang-migrate (used elsewhere in the pack for exactly this job) is not
// wired here: its only maintained SQLite driver is cgo/mattn-based, which
// conflicts with the pure-Go glebarez/sqlite driver the rest of the store
// uses. This runner plays the same role — a numbered, transactional,
// rollback-on-failure sequence tracked in a schema_migrations table — built
// directly on gorm instead.
package migrate

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Migration is one schema step. Up must be idempotent-safe to re-run only in the
// sense that it is only ever invoked once per fresh database; it runs inside a
// transaction that is rolled back whole on error.
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

type schemaVersion struct {
	ID      uint `gorm:"primaryKey"`
	Version int
}

func (schemaVersion) TableName() string { return "schema_migrations" }

// Registered is the complete, ordered migration sequence: core upstream config
// table, endpoint-visibility columns, usage/health tables, then the admin auth
// table.
var Registered = []Migration{
	{
		Version: 1,
		Name:    "create_core_tables",
		Up: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE TABLE IF NOT EXISTS upstream_configs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				service_type TEXT NOT NULL,
				public_name TEXT NOT NULL,
				model_name TEXT NOT NULL,
				api_key_ciphertext TEXT,
				base_url TEXT,
				is_enabled INTEGER DEFAULT 1,
				notes TEXT,
				created_at DATETIME,
				updated_at DATETIME
			)`).Error
		},
	},
	{
		Version: 2,
		Name:    "add_endpoint_visibility_columns",
		Up: func(tx *gorm.DB) error {
			if !tx.Migrator().HasColumn("upstream_configs", "available_on_general") {
				if err := tx.Exec(`ALTER TABLE upstream_configs ADD COLUMN available_on_general INTEGER DEFAULT 1`).Error; err != nil {
					return err
				}
			}
			if !tx.Migrator().HasColumn("upstream_configs", "available_on_special") {
				if err := tx.Exec(`ALTER TABLE upstream_configs ADD COLUMN available_on_special INTEGER DEFAULT 1`).Error; err != nil {
					return err
				}
			}
			// Backward compatibility: existing rows default to visible on both endpoints.
			return tx.Exec(`UPDATE upstream_configs SET available_on_general = 1, available_on_special = 1
				WHERE available_on_general IS NULL OR available_on_special IS NULL`).Error
		},
	},
	{
		Version: 3,
		Name:    "create_usage_and_health_tables",
		Up: func(tx *gorm.DB) error {
			if err := tx.Exec(`CREATE TABLE IF NOT EXISTS usage_records (
				id TEXT PRIMARY KEY,
				timestamp DATETIME,
				client_ip TEXT,
				public_name TEXT,
				config_id INTEGER,
				input_tokens INTEGER,
				output_tokens INTEGER,
				total_tokens INTEGER,
				response_time_ms INTEGER,
				status TEXT,
				error_message TEXT
			)`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_usage_records_timestamp ON usage_records(timestamp)`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_usage_records_client_ip ON usage_records(client_ip)`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_usage_records_public_name ON usage_records(public_name)`).Error; err != nil {
				return err
			}
			return tx.Exec(`CREATE TABLE IF NOT EXISTS health_statuses (
				config_id INTEGER PRIMARY KEY,
				status TEXT,
				checked_at DATETIME,
				response_time_ms INTEGER,
				model_count INTEGER,
				error_message TEXT
			)`).Error
		},
	},
	{
		Version: 4,
		Name:    "create_auth_configs_table",
		Up: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE TABLE IF NOT EXISTS auth_configs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				password_hash TEXT,
				password_salt TEXT,
				session_secret TEXT,
				created_at DATETIME,
				updated_at DATETIME
			)`).Error
		},
	},
}

// CurrentVersion is the highest version number in Registered.
func CurrentVersion() int {
	v := 0
	for _, m := range Registered {
		if m.Version > v {
			v = m.Version
		}
	}
	return v
}

// ErrMigrationFailed wraps the underlying error with the failing migration's identity.
type ErrMigrationFailed struct {
	Version int
	Name    string
	Cause   error
}

func (e *ErrMigrationFailed) Error() string {
	return fmt.Sprintf("migration %d_%s failed: %v", e.Version, e.Name, e.Cause)
}

func (e *ErrMigrationFailed) Unwrap() error { return e.Cause }

// Up applies every registered migration whose version exceeds schema_migrations'
// stored value, each in its own transaction, bumping the stored version after each
// success. A failing step rolls its own transaction back and stops the sequence;
// the database is left at the last successfully applied version.
func Up(db *gorm.DB) error {
	if err := db.AutoMigrate(&schemaVersion{}); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	current, err := readVersion(db)
	if err != nil {
		return err
	}

	for _, m := range Registered {
		if m.Version <= current {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return writeVersion(tx, m.Version)
		})
		if err != nil {
			return &ErrMigrationFailed{Version: m.Version, Name: m.Name, Cause: err}
		}
		current = m.Version
	}
	return nil
}

func readVersion(db *gorm.DB) (int, error) {
	var row schemaVersion
	err := db.Order("id desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return row.Version, nil
}

func writeVersion(tx *gorm.DB, version int) error {
	return tx.Create(&schemaVersion{Version: version}).Error
}
