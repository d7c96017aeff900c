package models

import "time"

// AuthConfig is the singleton admin-auth row. The core persistence layer only hosts it;
// password checks and session handling belong to the out-of-scope admin web UI.
type AuthConfig struct {
	ID            uint `gorm:"primaryKey"`
	PasswordHash  string
	PasswordSalt  string
	SessionSecret string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (AuthConfig) TableName() string { return "auth_configs" }
