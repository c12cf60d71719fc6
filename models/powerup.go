package models

import (
	"time"

	"github.com/gosimple/slug"
)

type PowerUpKind string

const (
	KindMultiplier PowerUpKind = "multiplier"
	KindSabotage   PowerUpKind = "sabotage"
	KindShield     PowerUpKind = "shield"
	KindGamble     PowerUpKind = "gamble"
)

func (k PowerUpKind) Valid() bool {
	switch k {
	case KindMultiplier, KindSabotage, KindShield, KindGamble:
		return true
	}
	return false
}

// PowerUpDefinition is a shop catalog item.
type PowerUpDefinition struct {
	ID           string      `gorm:"primaryKey;type:varchar(64)" json:"id"` // slug of Name
	Name         string      `gorm:"not null" json:"name"`
	Kind         PowerUpKind `gorm:"type:varchar(16);not null;index" json:"kind"`
	Description  string      `gorm:"type:text" json:"description"`
	Price        int64       `gorm:"not null" json:"price"`
	CadenceHours int         `gorm:"not null;default:168" json:"cadence_hours"` // one purchase per kind per window
	MaxUses      int         `gorm:"not null;default:1" json:"max_uses"`
	Factor       int64       `gorm:"not null;default:1" json:"factor"` // score multiplier, multiplier kind only
	Timestamps
}

func (d PowerUpDefinition) Cadence() time.Duration {
	return time.Duration(d.CadenceHours) * time.Hour
}

// NewPowerUpDefinition builds a definition whose ID is derived from its name.
func NewPowerUpDefinition(name string, kind PowerUpKind, price int64) PowerUpDefinition {
	return PowerUpDefinition{
		ID:           slug.Make(name),
		Name:         name,
		Kind:         kind,
		Price:        price,
		CadenceHours: 168,
		MaxUses:      1,
		Factor:       1,
	}
}

// DefaultCatalog is seeded on startup.
func DefaultCatalog() []PowerUpDefinition {
	double := NewPowerUpDefinition("Double Points", KindMultiplier, 5)
	double.Factor = 2
	double.Description = "Doubles the points of your next first attempt on a topic."

	sabotage := NewPowerUpDefinition("Sabotage", KindSabotage, 8)
	sabotage.Description = "Halves another player's next first-attempt score unless they hold a shield."

	shield := NewPowerUpDefinition("Shield", KindShield, 6)
	shield.Description = "Blocks one incoming sabotage."

	gamble := NewPowerUpDefinition("Gamble", KindGamble, 4)
	gamble.MaxUses = 3
	gamble.Description = "Three spins: +15, +6, -6 or -10 tokens."

	return []PowerUpDefinition{double, sabotage, shield, gamble}
}

type Resolution string

const (
	ResolutionNone        Resolution = ""
	ResolutionApplied     Resolution = "applied"
	ResolutionNeutralized Resolution = "neutralized"
)

// PowerUpInstance is one purchased power-up. Consumed is write-once:
// it only ever flips false -> true.
type PowerUpInstance struct {
	ID            string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PlayerID      string      `gorm:"index:idx_instance_owner_kind;not null" json:"player_id"`
	DefinitionID  string      `gorm:"not null" json:"definition_id"`
	Kind          PowerUpKind `gorm:"index:idx_instance_owner_kind;type:varchar(16);not null" json:"kind"`
	Factor        int64       `gorm:"not null;default:1" json:"factor,omitempty"`
	PurchasedAt   time.Time   `gorm:"not null;index" json:"purchased_at"`
	UsesRemaining int         `gorm:"not null;default:1" json:"uses_remaining"`
	Consumed      bool        `gorm:"not null;default:false;index" json:"consumed"`
	ConsumedAt    *time.Time  `json:"consumed_at,omitempty"`

	// Sabotage only
	TargetPlayerID    *string    `gorm:"index" json:"target_player_id,omitempty"`
	TargetedAt        *time.Time `json:"targeted_at,omitempty"`
	Resolution        Resolution `gorm:"type:varchar(16);not null;default:''" json:"resolution,omitempty"`
	ResolvedAttemptID *string    `json:"resolved_attempt_id,omitempty"`
}

// Armed reports whether a sabotage has a victim but has not fired yet.
func (p PowerUpInstance) Armed() bool {
	return p.Kind == KindSabotage && p.TargetPlayerID != nil && p.Resolution == ResolutionNone
}
