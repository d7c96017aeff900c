package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clads-dev/clads-gateway/internal/store/migrate"
	"github.com/clads-dev/clads-gateway/internal/store/models"
)

func TestOpen_CreatesAllTablesViaMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.db")

	db, err := Open(path)
	require.NoError(t, err)

	for _, model := range []interface{}{
		&models.UpstreamConfig{},
		&models.UsageRecord{},
		&models.HealthStatus{},
		&models.AuthConfig{},
	} {
		require.True(t, db.Migrator().HasTable(model), "expected table for %T to exist after Open", model)
	}
}

func TestOpen_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.db")

	_, err := Open(path)
	require.NoError(t, err)

	db, err := Open(path)
	require.NoError(t, err)
	require.True(t, db.Migrator().HasTable(&models.UpstreamConfig{}))
}

func TestOpen_SchemaReachesCurrentVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.db")

	db, err := Open(path)
	require.NoError(t, err)

	var row struct {
		Version int
	}
	require.NoError(t, db.Table("schema_migrations").Order("id desc").Limit(1).Scan(&row).Error)
	require.Equal(t, migrate.CurrentVersion(), row.Version)
}
