package models

import "time"

type Currency string

const (
	CurrencyPoints Currency = "points"
	CurrencyTokens Currency = "tokens"
)

// LedgerEntry is an immutable balance change. Rows are only ever inserted.
type LedgerEntry struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PlayerID     string    `gorm:"index:idx_ledger_player_currency;not null" json:"player_id"`
	Currency     Currency  `gorm:"index:idx_ledger_player_currency;type:varchar(16);not null" json:"currency"`
	Delta        int64     `gorm:"not null" json:"delta"`
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	Reason       string    `gorm:"type:varchar(64);not null" json:"reason"`
	RefID        string    `gorm:"index" json:"ref_id,omitempty"` // attempt or power-up instance that caused it
	CreatedAt    time.Time `gorm:"index;not null" json:"created_at"`
}

// Ledger reasons
const (
	ReasonQuizReward   = "quiz_reward"
	ReasonPurchase     = "powerup_purchase"
	ReasonGamble       = "gamble"
	ReasonCompensation = "compensation"
	ReasonAdminGrant   = "admin_grant"
)
