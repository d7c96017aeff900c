package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clads-dev/clads-gateway/internal/configsvc"
	"github.com/clads-dev/clads-gateway/internal/crypto"
	"github.com/clads-dev/clads-gateway/internal/dashboard"
	"github.com/clads-dev/clads-gateway/internal/store/models"
	"github.com/clads-dev/clads-gateway/internal/usage"
)

func testRouter(t *testing.T, password string) (*Router, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UpstreamConfig{}, &models.HealthStatus{}, &models.UsageRecord{}))

	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i + 7)
	}
	box, err := crypto.NewBox(key)
	require.NoError(t, err)
	svc, err := configsvc.New(db, box)
	require.NoError(t, err)

	rec := usage.New(db, 16)
	t.Cleanup(rec.Close)

	ar := &Router{
		Config:    svc,
		Dashboard: dashboard.New(db),
		Recorder:  rec,
		DB:        db,
		Password:  password,
	}
	return ar, db
}

func TestHandleHealth_AlwaysAccessibleWithoutAuth(t *testing.T) {
	ar, _ := testRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	ar.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminReload_RequiresBasicAuthWhenPasswordSet(t *testing.T) {
	ar, _ := testRouter(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
	w := httptest.NewRecorder()
	ar.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
	req.SetBasicAuth("anyone", "secret")
	w = httptest.NewRecorder()
	ar.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAdminReload_NoAuthRequiredWhenPasswordEmpty(t *testing.T) {
	ar, _ := testRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
	w := httptest.NewRecorder()
	ar.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateConfig_ThenListReturnsMaskedKey(t *testing.T) {
	ar, _ := testRouter(t, "")

	body := strings.NewReader(`{
		"ServiceType": "openai",
		"PublicName": "fast",
		"ModelName": "gpt-4o-mini",
		"APIKey": "sk-abcdefgh12345678",
		"IsEnabled": true,
		"AvailableOnGeneral": true,
		"AvailableOnSpecial": true
	}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/configs", body)
	w := httptest.NewRecorder()
	ar.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/admin/configs", nil)
	w = httptest.NewRecorder()
	ar.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var configs []models.MaskedUpstreamConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &configs))
	require.Len(t, configs, 1)
	require.NotContains(t, configs[0].APIKeyMasked, "abcdefgh1234")
}
