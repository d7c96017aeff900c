package configsvc

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clads-dev/clads-gateway/internal/crypto"
	"github.com/clads-dev/clads-gateway/internal/store/models"
)

func testService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UpstreamConfig{}, &models.HealthStatus{}))

	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	box, err := crypto.NewBox(key)
	require.NoError(t, err)

	svc, err := New(db, box)
	require.NoError(t, err)
	return svc
}

func baseInput() Input {
	return Input{
		ServiceType:        models.ServiceOpenAI,
		PublicName:         "gpt-4",
		ModelName:          "gpt-4-0613",
		APIKey:             "sk-test-12345",
		IsEnabled:          true,
		AvailableOnGeneral: true,
		AvailableOnSpecial: true,
	}
}

func TestCreate_EncryptsKeyAndPublishesSnapshot(t *testing.T) {
	svc := testService(t)

	row, err := svc.Create(baseInput())
	require.NoError(t, err)
	require.NotEqual(t, "sk-test-12345", row.APIKeyCiphertext)

	entry, ok := svc.Snapshot().Lookup("gpt-4")
	require.True(t, ok)
	require.Equal(t, "sk-test-12345", entry.APIKey)
}

func TestCreate_RejectsDuplicatePublicNameAmongEnabled(t *testing.T) {
	svc := testService(t)
	_, err := svc.Create(baseInput())
	require.NoError(t, err)

	_, err = svc.Create(baseInput())
	require.ErrorIs(t, err, ErrDuplicatePublicName)
}

func TestCreate_RejectsEnabledWithNoVisibility(t *testing.T) {
	svc := testService(t)
	in := baseInput()
	in.AvailableOnGeneral = false
	in.AvailableOnSpecial = false

	_, err := svc.Create(in)
	require.ErrorIs(t, err, ErrNotVisible)
}

func TestCreate_RejectsUnknownServiceType(t *testing.T) {
	svc := testService(t)
	in := baseInput()
	in.ServiceType = "not_a_real_service"

	_, err := svc.Create(in)
	require.ErrorIs(t, err, ErrInvalidServiceType)
}

func TestList_ReturnsMaskedKeyNeverPlaintext(t *testing.T) {
	svc := testService(t)
	_, err := svc.Create(baseInput())
	require.NoError(t, err)

	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotEqual(t, "sk-test-12345", list[0].APIKeyMasked)
}

func TestGet_RevealReturnsPlaintextOtherwiseEmpty(t *testing.T) {
	svc := testService(t)
	row, err := svc.Create(baseInput())
	require.NoError(t, err)

	_, plaintext, err := svc.Get(row.ID, false)
	require.NoError(t, err)
	require.Empty(t, plaintext)

	_, plaintext, err = svc.Get(row.ID, true)
	require.NoError(t, err)
	require.Equal(t, "sk-test-12345", plaintext)
}

func TestDelete_RemovesFromSnapshotAndCascadesHealthRows(t *testing.T) {
	svc := testService(t)
	row, err := svc.Create(baseInput())
	require.NoError(t, err)
	require.NoError(t, svc.db.Create(&models.HealthStatus{ConfigID: row.ID, Status: models.HealthOK}).Error)

	require.NoError(t, svc.Delete(row.ID))

	_, ok := svc.Snapshot().Lookup("gpt-4")
	require.False(t, ok)

	var count int64
	svc.db.Model(&models.HealthStatus{}).Where("config_id = ?", row.ID).Count(&count)
	require.Zero(t, count)
}

func TestSnapshot_VisibleOnRespectsEndpointFlags(t *testing.T) {
	svc := testService(t)
	in := baseInput()
	in.PublicName = "secret-4"
	in.AvailableOnGeneral = false
	in.AvailableOnSpecial = true
	_, err := svc.Create(in)
	require.NoError(t, err)

	general := svc.Snapshot().VisibleOn(EndpointGeneral)
	special := svc.Snapshot().VisibleOn(EndpointSpecial)
	require.Empty(t, general)
	require.Len(t, special, 1)
}
