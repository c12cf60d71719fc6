package services

import (
	"context"
	"errors"

	"powerup-economy/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TargetingRegistry tracks armed sabotages. A player can have at most one
// unresolved sabotage pointed at them, and each sabotage instance fires once.
type TargetingRegistry struct {
	store *Store
	locks *PlayerLocks
	clock clockwork.Clock
	log   *zap.Logger
}

func NewTargetingRegistry(store *Store, locks *PlayerLocks, clock clockwork.Clock, logger *zap.Logger) *TargetingRegistry {
	return &TargetingRegistry{
		store: store,
		locks: locks,
		clock: clock,
		log:   logger.Named("targeting"),
	}
}

// ActivateSabotage points the attacker's sabotage instance at targetID.
// Both players are locked, lower id first.
func (r *TargetingRegistry) ActivateSabotage(ctx context.Context, attackerID, targetID, instanceID string) (*models.PowerUpInstance, error) {
	if attackerID == targetID {
		return nil, newError(CodeTargetUnavailable, "cannot sabotage yourself")
	}
	unlock, err := r.locks.Lock(ctx, attackerID, targetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var inst models.PowerUpInstance
	err = r.store.Atomically(ctx, "targeting.activate", func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&inst, "id = ? AND player_id = ?", instanceID, attackerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(CodeNotFound, "power-up %s not owned by %s", instanceID, attackerID)
			}
			return err
		}

		var target models.Player
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&target, "id = ?", targetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(CodeTargetUnavailable, "player %s does not exist", targetID)
			}
			return err
		}
		if !target.IsActive {
			return newError(CodeTargetUnavailable, "player %s is not active", targetID)
		}

		return r.RegisterTarget(tx, &inst, targetID)
	})
	if err != nil {
		r.log.Info("🎯 sabotage rejected",
			zap.String("attacker_id", attackerID), zap.String("target_id", targetID),
			zap.String("instance_id", instanceID), zap.Error(err))
		return nil, err
	}

	r.log.Info("🎯 sabotage armed",
		zap.String("attacker_id", attackerID), zap.String("target_id", targetID),
		zap.String("instance_id", instanceID))
	return &inst, nil
}

// RegisterTarget arms inst against targetID inside tx.
func (r *TargetingRegistry) RegisterTarget(tx *gorm.DB, inst *models.PowerUpInstance, targetID string) error {
	if inst.Kind != models.KindSabotage {
		return newError(CodeInvalidArgument, "power-up %s is a %s, not a sabotage", inst.ID, inst.Kind)
	}
	if inst.Consumed {
		return newError(CodeAlreadyConsumed, "sabotage %s already used", inst.ID)
	}
	if inst.TargetPlayerID != nil {
		return newError(CodeAlreadyTargeted, "sabotage %s already aimed at %s", inst.ID, *inst.TargetPlayerID)
	}

	pending, err := pendingAgainst(tx, targetID)
	if err != nil {
		return err
	}
	if pending != nil {
		return newError(CodeAlreadyTargeted, "player %s already has a pending sabotage", targetID)
	}

	now := r.clock.Now()
	res := tx.Model(&models.PowerUpInstance{}).
		Where("id = ? AND target_player_id IS NULL AND consumed = ?", inst.ID, false).
		Updates(map[string]any{"target_player_id": targetID, "targeted_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newError(CodeAlreadyTargeted, "sabotage %s already aimed", inst.ID)
	}
	inst.TargetPlayerID = &targetID
	inst.TargetedAt = &now
	return nil
}

// IsTargetable reports whether the player has no unresolved sabotage against them.
func (r *TargetingRegistry) IsTargetable(ctx context.Context, playerID string) (bool, error) {
	var pending *models.PowerUpInstance
	err := r.store.Read(ctx, "targeting.targetable", func(db *gorm.DB) error {
		var err error
		pending, err = pendingAgainst(db, playerID)
		return err
	})
	if err != nil {
		return false, err
	}
	return pending == nil, nil
}

// PendingAgainst returns the unresolved sabotage aimed at playerID, or nil.
func (r *TargetingRegistry) PendingAgainst(tx *gorm.DB, playerID string) (*models.PowerUpInstance, error) {
	return pendingAgainst(tx.Clauses(clause.Locking{Strength: "UPDATE"}), playerID)
}

func pendingAgainst(db *gorm.DB, playerID string) (*models.PowerUpInstance, error) {
	var inst models.PowerUpInstance
	err := db.Where("kind = ? AND target_player_id = ? AND resolution = ? AND consumed = ?",
		models.KindSabotage, playerID, models.ResolutionNone, false).
		Order("targeted_at ASC").
		First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// Resolve records how a sabotage ended and consumes it. It fires once.
func (r *TargetingRegistry) Resolve(tx *gorm.DB, inst *models.PowerUpInstance, outcome models.Resolution, attemptID string) error {
	if outcome != models.ResolutionApplied && outcome != models.ResolutionNeutralized {
		return newError(CodeInvalidArgument, "unknown sabotage outcome %q", outcome)
	}
	now := r.clock.Now()
	res := tx.Model(&models.PowerUpInstance{}).
		Where("id = ? AND resolution = ? AND consumed = ?", inst.ID, models.ResolutionNone, false).
		Updates(map[string]any{
			"resolution":          outcome,
			"resolved_attempt_id": attemptID,
			"consumed":            true,
			"consumed_at":         now,
			"uses_remaining":      0,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newError(CodeAlreadyConsumed, "sabotage %s already resolved", inst.ID)
	}
	inst.Resolution = outcome
	inst.ResolvedAttemptID = &attemptID
	inst.Consumed = true
	inst.ConsumedAt = &now
	inst.UsesRemaining = 0
	return nil
}
