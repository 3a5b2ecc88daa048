// Package models contains the database model definitions.
// These models map directly to the SQLite database tables.
package models

import (
	"time"
)

// KnownNetwork represents a previously used or explicitly remembered WiFi
// network. Records are created on first successful connection or an explicit
// remember request, updated on every connection attempt, and deleted when the
// network is forgotten.
// Table: known_networks
type KnownNetwork struct {
	ID           string `gorm:"column:id;primaryKey"`
	SSID         string `gorm:"column:ssid;uniqueIndex"`
	BSSID        *string `gorm:"column:bssid"`
	SecurityType string  `gorm:"column:security_type;default:unknown"`
	AutoConnect  bool    `gorm:"column:auto_connect;default:true"`
	Priority     int     `gorm:"column:priority;default:0;index"`

	// Connection bookkeeping
	FirstConnected *time.Time `gorm:"column:first_connected"`
	LastUsed       *time.Time `gorm:"column:last_used"`
	ConnectCount   int        `gorm:"column:connect_count;default:0"`
	FailureCount   int        `gorm:"column:failure_count;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (KnownNetwork) TableName() string { return "known_networks" }
