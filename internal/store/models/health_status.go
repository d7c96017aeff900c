package models

import "time"

// HealthResult is the closed outcome set for an upstream probe.
type HealthResult string

const (
	HealthOK      HealthResult = "ok"
	HealthNG      HealthResult = "ng"
	HealthUnknown HealthResult = "unknown"
)

// HealthStatus holds the latest probe result per config. Rewritten in place by the
// (out-of-core-scope) scheduled prober; read by the dashboard.
type HealthStatus struct {
	ConfigID       uint         `gorm:"primaryKey" json:"config_id"`
	Status         HealthResult `json:"status"`
	CheckedAt      time.Time    `json:"checked_at"`
	ResponseTimeMs int64        `json:"response_time_ms"`
	ModelCount     int          `json:"model_count"`
	ErrorMessage   string       `json:"error_message,omitempty"`
}

func (HealthStatus) TableName() string { return "health_statuses" }
