package models

import "time"

// UsageStatus is the closed outcome set for a completed or abandoned request.
type UsageStatus string

const (
	StatusSuccess       UsageStatus = "success"
	StatusClientError   UsageStatus = "client_error"
	StatusUpstreamError UsageStatus = "upstream_error"
	StatusTimeout       UsageStatus = "timeout"
)

// UsageRecord is an append-only row describing one client request's outcome and
// accounting. Once written it is never mutated.
type UsageRecord struct {
	ID             string      `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time   `gorm:"index" json:"timestamp"`
	ClientIP       string      `gorm:"index" json:"client_ip"`
	PublicName     string      `gorm:"index" json:"public_name"`
	ConfigID       *uint       `json:"config_id,omitempty"`
	InputTokens    int         `json:"input_tokens"`
	OutputTokens   int         `json:"output_tokens"`
	TotalTokens    int         `json:"total_tokens"`
	ResponseTimeMs int64       `json:"response_time_ms"`
	Status         UsageStatus `json:"status"`
	ErrorMessage   string      `json:"error_message,omitempty"`
}

func (UsageRecord) TableName() string { return "usage_records" }
