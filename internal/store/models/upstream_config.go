package models

import (
	"strings"
	"time"
)

// ServiceType is the closed set of upstream provider kinds a config can target.
type ServiceType string

const (
	ServiceOpenAI           ServiceType = "openai"
	ServiceAnthropic        ServiceType = "anthropic"
	ServiceGemini           ServiceType = "gemini"
	ServiceOpenRouter       ServiceType = "openrouter"
	ServiceVSCodeProxy      ServiceType = "vscode_proxy"
	ServiceLMStudio         ServiceType = "lmstudio"
	ServiceOpenAICompatible ServiceType = "openai_compatible"
	ServiceNone             ServiceType = "none"
)

// ValidServiceTypes returns the closed set, in a stable order, for validation and seeding.
func ValidServiceTypes() []ServiceType {
	return []ServiceType{
		ServiceOpenAI, ServiceAnthropic, ServiceGemini, ServiceOpenRouter,
		ServiceVSCodeProxy, ServiceLMStudio, ServiceOpenAICompatible, ServiceNone,
	}
}

func (s ServiceType) Valid() bool {
	for _, v := range ValidServiceTypes() {
		if v == s {
			return true
		}
	}
	return false
}

// UpstreamConfig is one configured provider endpoint. ID is monotonic and never reused
// (GORM auto-increment primary key; deleted rows are never reinserted with a lower ID).
type UpstreamConfig struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	ServiceType        ServiceType `gorm:"not null;index" json:"service_type"`
	PublicName         string      `gorm:"uniqueIndex:idx_public_name_enabled;not null" json:"public_name"`
	ModelName          string      `gorm:"not null" json:"model_name"`
	APIKeyCiphertext   string      `gorm:"column:api_key_ciphertext" json:"-"`
	BaseURL            string      `json:"base_url"`
	IsEnabled          bool        `gorm:"default:true;index" json:"is_enabled"`
	AvailableOnGeneral bool        `gorm:"default:true" json:"available_on_general"`
	AvailableOnSpecial bool        `gorm:"default:true" json:"available_on_special"`
	Notes              string      `json:"notes"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (UpstreamConfig) TableName() string { return "upstream_configs" }

// Masked returns a copy of the config with the API key redacted to first4+stars+last4.
// Used for list() output — never returns plaintext.
func (c UpstreamConfig) Masked(plaintext string) MaskedUpstreamConfig {
	return MaskedUpstreamConfig{
		ID:                 c.ID,
		ServiceType:        c.ServiceType,
		PublicName:         c.PublicName,
		ModelName:          c.ModelName,
		APIKeyMasked:       maskSecret(plaintext),
		BaseURL:            c.BaseURL,
		IsEnabled:          c.IsEnabled,
		AvailableOnGeneral: c.AvailableOnGeneral,
		AvailableOnSpecial: c.AvailableOnSpecial,
		Notes:              c.Notes,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

// MaskedUpstreamConfig is the shape returned by list() and by get(id, reveal=false).
type MaskedUpstreamConfig struct {
	ID                 uint        `json:"id"`
	ServiceType        ServiceType `json:"service_type"`
	PublicName         string      `json:"public_name"`
	ModelName          string      `json:"model_name"`
	APIKeyMasked       string      `json:"api_key"`
	BaseURL            string      `json:"base_url"`
	IsEnabled          bool        `json:"is_enabled"`
	AvailableOnGeneral bool        `json:"available_on_general"`
	AvailableOnSpecial bool        `json:"available_on_special"`
	Notes              string      `json:"notes"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
