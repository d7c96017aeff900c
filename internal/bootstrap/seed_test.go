package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clads-dev/clads-gateway/internal/configsvc"
	"github.com/clads-dev/clads-gateway/internal/crypto"
	"github.com/clads-dev/clads-gateway/internal/store/models"
)

func testSetup(t *testing.T) (*gorm.DB, *configsvc.Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UpstreamConfig{}, &models.HealthStatus{}))

	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i + 3)
	}
	box, err := crypto.NewBox(key)
	require.NoError(t, err)

	svc, err := configsvc.New(db, box)
	require.NoError(t, err)
	return db, svc
}

func writeSeedFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "upstreams.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestSeed_LoadsEntriesWhenTableEmpty(t *testing.T) {
	db, svc := testSetup(t)
	path := writeSeedFile(t, `
upstreams:
  - service_type: openai
    public_name: fast
    model_name: gpt-4o-mini
    api_key: sk-test
    is_enabled: true
    available_on_general: true
    available_on_special: true
`)

	loaded, err := Seed(db, svc, []string{path})
	require.NoError(t, err)
	require.Equal(t, 1, loaded)

	entry, ok := svc.Snapshot().Lookup("fast")
	require.True(t, ok)
	require.Equal(t, "sk-test", entry.APIKey)
}

func TestSeed_SkipsWhenTableAlreadyHasRows(t *testing.T) {
	db, svc := testSetup(t)
	_, err := svc.Create(configsvc.Input{
		ServiceType: models.ServiceOpenAI, PublicName: "existing", ModelName: "gpt-4o-mini",
		APIKey: "sk-existing", IsEnabled: true, AvailableOnGeneral: true, AvailableOnSpecial: true,
	})
	require.NoError(t, err)

	path := writeSeedFile(t, `
upstreams:
  - service_type: openai
    public_name: would-be-seeded
    model_name: gpt-4o-mini
    api_key: sk-test
    is_enabled: true
    available_on_general: true
    available_on_special: true
`)

	loaded, err := Seed(db, svc, []string{path})
	require.NoError(t, err)
	require.Zero(t, loaded)

	_, ok := svc.Snapshot().Lookup("would-be-seeded")
	require.False(t, ok)
}

func TestSeed_NoFileFoundReturnsZeroWithoutError(t *testing.T) {
	db, svc := testSetup(t)

	loaded, err := Seed(db, svc, []string{filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)
	require.Zero(t, loaded)
}
