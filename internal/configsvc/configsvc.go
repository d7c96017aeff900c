// Package configsvc is the Config Service: CRUD over UpstreamConfig rows plus
// the hot-reloadable snapshot the proxy runtime reads on every request.
// Generalizes the ModelRoute CRUD free functions this module grew out of
// (internal/db/sqlite.go: CreateModelRoute/UpdateModelRoute/DeleteModelRoute/
// GetAllModelRoutes/ResetModelRoutes, each followed by loadModelRouteCache)
// from package-level functions over a global cache into methods on a Service
// that publishes an atomic.Pointer[Snapshot] instead of rebuilding a
// mutex-guarded cache on every write.
package configsvc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/clads-dev/clads-gateway/internal/crypto"
	"github.com/clads-dev/clads-gateway/internal/store/models"
)

// Service owns UpstreamConfig persistence and the published Snapshot.
type Service struct {
	db      *gorm.DB
	box     *crypto.Box
	current atomic.Pointer[Snapshot]
}

// New builds a Service and loads its first snapshot from the database.
func New(db *gorm.DB, box *crypto.Box) (*Service, error) {
	s := &Service{db: db, box: box}
	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the currently published snapshot. Safe for concurrent use
// without locking — it's a single atomic load.
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

// ReloadFailure names one config that was skipped while rebuilding the
// snapshot, and why, so the admin reload endpoint can surface it instead of
// the failure only ever reaching the logs.
type ReloadFailure struct {
	ID     uint   `json:"id"`
	Reason string `json:"reason"`
}

// Reload rebuilds the snapshot from the database and atomically swaps it in,
// returning every config skipped because its API key failed to decrypt. No
// in-flight reader ever observes a partially rebuilt snapshot: readers
// either get the old pointer or the fully-built new one.
func (s *Service) Reload() ([]ReloadFailure, error) {
	var rows []models.UpstreamConfig
	if err := s.db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load upstream configs: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	var failed []ReloadFailure
	for _, row := range rows {
		plaintext, err := s.box.Open(row.APIKeyCiphertext)
		if err != nil {
			slog.Error("failed to decrypt api key, skipping config", "config_id", row.ID, "error", err)
			failed = append(failed, ReloadFailure{ID: row.ID, Reason: err.Error()})
			continue
		}
		entries = append(entries, Entry{Config: row, APIKey: plaintext})
	}

	s.current.Store(newSnapshot(entries))
	slog.Info("config snapshot reloaded", "configs", len(entries), "failed", len(failed))
	return failed, nil
}

// List returns every config in masked form, for the admin surface.
func (s *Service) List() ([]models.MaskedUpstreamConfig, error) {
	var rows []models.UpstreamConfig
	if err := s.db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list upstream configs: %w", err)
	}
	out := make([]models.MaskedUpstreamConfig, 0, len(rows))
	for _, row := range rows {
		plaintext, err := s.box.Open(row.APIKeyCiphertext)
		if err != nil {
			plaintext = ""
		}
		out = append(out, row.Masked(plaintext))
	}
	return out, nil
}

// Get fetches one config by id. When reveal is false the returned plaintext
// key is always empty; list() and get(reveal=false) never return it.
func (s *Service) Get(id uint, reveal bool) (models.MaskedUpstreamConfig, string, error) {
	var row models.UpstreamConfig
	if err := s.db.First(&row, id).Error; err != nil {
		return models.MaskedUpstreamConfig{}, "", fmt.Errorf("get upstream config %d: %w", id, err)
	}
	plaintext, err := s.box.Open(row.APIKeyCiphertext)
	if err != nil {
		return models.MaskedUpstreamConfig{}, "", fmt.Errorf("decrypt api key for config %d: %w", id, err)
	}
	masked := row.Masked(plaintext)
	if !reveal {
		return masked, "", nil
	}
	return masked, plaintext, nil
}

// Input is the create/update payload; APIKey is optional on update (empty
// means "leave unchanged").
type Input struct {
	ServiceType        models.ServiceType
	PublicName         string
	ModelName          string
	APIKey             string
	BaseURL            string
	IsEnabled          bool
	AvailableOnGeneral bool
	AvailableOnSpecial bool
	Notes              string
}

var (
	ErrInvalidServiceType  = errors.New("service_type is not in the closed set")
	ErrDuplicatePublicName = errors.New("public_name is already in use by another enabled config")
	ErrNotVisible          = errors.New("an enabled config must be available on at least one endpoint")
)

func (in Input) validate() error {
	if !in.ServiceType.Valid() {
		return ErrInvalidServiceType
	}
	if in.IsEnabled && !in.AvailableOnGeneral && !in.AvailableOnSpecial {
		return ErrNotVisible
	}
	return nil
}

// Create inserts a new config, encrypting its API key, then reloads the snapshot.
func (s *Service) Create(in Input) (models.UpstreamConfig, error) {
	if err := in.validate(); err != nil {
		return models.UpstreamConfig{}, err
	}
	if err := s.checkPublicNameUnique(in.PublicName, in.IsEnabled, 0); err != nil {
		return models.UpstreamConfig{}, err
	}

	ciphertext, err := s.box.Seal(in.APIKey)
	if err != nil {
		return models.UpstreamConfig{}, fmt.Errorf("encrypt api key: %w", err)
	}

	row := models.UpstreamConfig{
		ServiceType:        in.ServiceType,
		PublicName:         in.PublicName,
		ModelName:          in.ModelName,
		APIKeyCiphertext:   ciphertext,
		BaseURL:            in.BaseURL,
		IsEnabled:          in.IsEnabled,
		AvailableOnGeneral: in.AvailableOnGeneral,
		AvailableOnSpecial: in.AvailableOnSpecial,
		Notes:              in.Notes,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return models.UpstreamConfig{}, fmt.Errorf("create upstream config: %w", err)
	}
	if _, err := s.Reload(); err != nil {
		return models.UpstreamConfig{}, err
	}
	return row, nil
}

// Update applies in over the existing row with id, re-encrypting the API key
// only if a new one was supplied, then reloads the snapshot.
func (s *Service) Update(id uint, in Input) (models.UpstreamConfig, error) {
	if err := in.validate(); err != nil {
		return models.UpstreamConfig{}, err
	}
	if err := s.checkPublicNameUnique(in.PublicName, in.IsEnabled, id); err != nil {
		return models.UpstreamConfig{}, err
	}

	var row models.UpstreamConfig
	if err := s.db.First(&row, id).Error; err != nil {
		return models.UpstreamConfig{}, fmt.Errorf("get upstream config %d: %w", id, err)
	}

	row.ServiceType = in.ServiceType
	row.PublicName = in.PublicName
	row.ModelName = in.ModelName
	row.BaseURL = in.BaseURL
	row.IsEnabled = in.IsEnabled
	row.AvailableOnGeneral = in.AvailableOnGeneral
	row.AvailableOnSpecial = in.AvailableOnSpecial
	row.Notes = in.Notes
	if in.APIKey != "" {
		ciphertext, err := s.box.Seal(in.APIKey)
		if err != nil {
			return models.UpstreamConfig{}, fmt.Errorf("encrypt api key: %w", err)
		}
		row.APIKeyCiphertext = ciphertext
	}

	if err := s.db.Save(&row).Error; err != nil {
		return models.UpstreamConfig{}, fmt.Errorf("update upstream config %d: %w", id, err)
	}
	if _, err := s.Reload(); err != nil {
		return models.UpstreamConfig{}, err
	}
	return row, nil
}

// Delete removes a config and its dependent health row, then reloads the snapshot.
func (s *Service) Delete(id uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.HealthStatus{}, "config_id = ?", id).Error; err != nil {
			return fmt.Errorf("delete dependent health rows: %w", err)
		}
		if err := tx.Delete(&models.UpstreamConfig{}, id).Error; err != nil {
			return fmt.Errorf("delete upstream config %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = s.Reload()
	return err
}

func (s *Service) checkPublicNameUnique(publicName string, enabled bool, excludeID uint) error {
	if !enabled || publicName == "" {
		return nil
	}
	var count int64
	q := s.db.Model(&models.UpstreamConfig{}).
		Where("public_name = ? AND is_enabled = ?", publicName, true)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check public_name uniqueness: %w", err)
	}
	if count > 0 {
		return ErrDuplicatePublicName
	}
	return nil
}
