// Package bootstrap seeds the initial set of UpstreamConfig rows from an
// optional YAML file on first start, generalizing ensureModelRoutes/
// loadConfigProviders (internal/db/sqlite.go, internal/providers/catalog/catalog.go)
// from two format-specific YAML schemas (model_routes.yaml,
// openai_compat_providers.yaml) into one UpstreamConfig-shaped seed file.
package bootstrap

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/clads-dev/clads-gateway/internal/configsvc"
	"github.com/clads-dev/clads-gateway/internal/store/models"
)

// SeedEntry is one YAML-configured upstream to create on first start.
type SeedEntry struct {
	ServiceType        models.ServiceType `yaml:"service_type"`
	PublicName         string             `yaml:"public_name"`
	ModelName          string             `yaml:"model_name"`
	APIKey             string             `yaml:"api_key"`
	BaseURL            string             `yaml:"base_url"`
	IsEnabled          bool               `yaml:"is_enabled"`
	AvailableOnGeneral bool               `yaml:"available_on_general"`
	AvailableOnSpecial bool               `yaml:"available_on_special"`
	Notes              string             `yaml:"notes"`
}

// SeedFile is the top-level shape of the seed YAML.
type SeedFile struct {
	Upstreams []SeedEntry `yaml:"upstreams"`
}

// DefaultSearchPaths checks a working-directory config/ path, then /etc,
// then the user's home directory, in that order.
func DefaultSearchPaths() []string {
	paths := []string{
		"config/upstreams.yaml",
		"./config/upstreams.yaml",
		"/etc/clads-gateway/upstreams.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths,
			home+"/.config/clads-gateway/upstreams.yaml",
			home+"/.clads-gateway/upstreams.yaml",
		)
	}
	return paths
}

// Seed loads an upstreams.yaml from the first path that exists and creates
// one UpstreamConfig per entry, but only when the table is currently empty —
// an operator's manually-entered configs are never overwritten by a restart.
func Seed(db *gorm.DB, svc *configsvc.Service, paths []string) (int, error) {
	var count int64
	if err := db.Model(&models.UpstreamConfig{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count existing upstream configs: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	var data []byte
	var loadedFrom string
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err == nil {
			data, loadedFrom = b, path
			break
		}
	}
	if data == nil {
		log.Printf("no upstreams.yaml found, starting with zero configured upstreams")
		return 0, nil
	}
	log.Printf("loading upstream seed from: %s", loadedFrom)

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse %s: %w", loadedFrom, err)
	}

	loaded := 0
	for _, entry := range file.Upstreams {
		_, err := svc.Create(configsvc.Input{
			ServiceType:        entry.ServiceType,
			PublicName:         entry.PublicName,
			ModelName:          entry.ModelName,
			APIKey:             entry.APIKey,
			BaseURL:            entry.BaseURL,
			IsEnabled:          entry.IsEnabled,
			AvailableOnGeneral: entry.AvailableOnGeneral,
			AvailableOnSpecial: entry.AvailableOnSpecial,
			Notes:              entry.Notes,
		})
		if err != nil {
			log.Printf("skipping seed entry %q: %v", entry.PublicName, err)
			continue
		}
		loaded++
	}
	log.Printf("seeded %d upstream config(s)", loaded)
	return loaded, nil
}
