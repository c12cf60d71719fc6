package services

import (
	"context"
	"strings"

	"powerup-economy/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IdentityResolver maps an auth principal to the internal player.
type IdentityResolver struct {
	store *Store
	log   *zap.Logger
}

func NewIdentityResolver(store *Store, logger *zap.Logger) *IdentityResolver {
	return &IdentityResolver{store: store, log: logger.Named("identity")}
}

// Resolve returns the player for externalUserID, creating it on first sight (idempotent).
func (r *IdentityResolver) Resolve(ctx context.Context, externalUserID string) (*models.Player, error) {
	externalUserID = strings.TrimSpace(externalUserID)
	if externalUserID == "" {
		return nil, newError(CodeInvalidArgument, "external user id is required")
	}

	var player models.Player
	created := false
	err := r.store.Atomically(ctx, "identity.resolve", func(tx *gorm.DB) error {
		res := tx.Where("external_user_id = ?", externalUserID).Limit(1).Find(&player)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		player = models.Player{
			ID:             uuid.NewString(),
			ExternalUserID: externalUserID,
			IsActive:       true,
			Title:          TitleFor(0),
		}
		ins := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}},
			DoNothing: true,
		}).Create(&player)
		if ins.Error != nil {
			return ins.Error
		}
		created = ins.RowsAffected > 0
		// Lost a race with another resolver; read the winner.
		return tx.Where("external_user_id = ?", externalUserID).First(&player).Error
	})
	if err != nil {
		return nil, err
	}
	if created {
		r.log.Info("👤 player created", zap.String("player_id", player.ID), zap.String("external_user_id", externalUserID))
	}
	return &player, nil
}

// Player loads a player by internal id.
func (r *IdentityResolver) Player(ctx context.Context, playerID string) (*models.Player, error) {
	var player models.Player
	var found bool
	err := r.store.Read(ctx, "identity.player", func(db *gorm.DB) error {
		res := db.Where("id = ?", playerID).Limit(1).Find(&player)
		found = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newError(CodeNotFound, "player %s not found", playerID)
	}
	return &player, nil
}
