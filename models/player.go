package models

import (
	"time"

	"gorm.io/gorm"
)

// Player is the economy's view of a quiz user.
// Points and Tokens are cached running totals of the ledger, written only
// in the same transaction as the LedgerEntry that changes them.
type Player struct {
	ID             string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // auth principal (Firebase UID)
	Username       string `gorm:"index" json:"username"`
	IsActive       bool   `gorm:"not null" json:"is_active"` // false once the account is suspended

	Points int64  `gorm:"not null;default:0" json:"points"`
	Tokens int64  `gorm:"not null;default:0" json:"tokens"`
	Title  string `gorm:"type:varchar(32);not null;default:'Rookie'" json:"title"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
