package services

import (
	"context"
	"errors"

	"powerup-economy/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryService owns purchased power-ups and their Active -> Consumed lifecycle.
type InventoryService struct {
	store    *Store
	ledger   *LedgerService
	locks    *PlayerLocks
	notifier *Notifier
	clock    clockwork.Clock
	log      *zap.Logger
}

func NewInventoryService(store *Store, ledger *LedgerService, locks *PlayerLocks, notifier *Notifier, clock clockwork.Clock, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		store:    store,
		ledger:   ledger,
		locks:    locks,
		notifier: notifier,
		clock:    clock,
		log:      logger.Named("inventory"),
	}
}

// Catalog lists the shop, cheapest first.
func (s *InventoryService) Catalog(ctx context.Context) ([]models.PowerUpDefinition, error) {
	var defs []models.PowerUpDefinition
	err := s.store.Read(ctx, "inventory.catalog", func(db *gorm.DB) error {
		return db.Order("price ASC").Order("id ASC").Find(&defs).Error
	})
	return defs, err
}

// Purchase debits the price and creates an instance in one transaction.
// One purchase per kind per cadence window.
func (s *InventoryService) Purchase(ctx context.Context, playerID, definitionID string) (*models.PowerUpInstance, error) {
	unlock, err := s.locks.Lock(ctx, playerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var inst models.PowerUpInstance
	var entry models.LedgerEntry
	err = s.store.Atomically(ctx, "inventory.purchase", func(tx *gorm.DB) error {
		var def models.PowerUpDefinition
		if err := tx.First(&def, "id = ?", definitionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(CodeNotFound, "power-up %q not in catalog", definitionID)
			}
			return err
		}
		if _, err := lockPlayer(tx, playerID); err != nil {
			return err
		}

		now := s.clock.Now()
		var last models.PowerUpInstance
		err := tx.Where("player_id = ? AND kind = ?", playerID, def.Kind).
			Order("purchased_at DESC").
			First(&last).Error
		switch {
		case err == nil:
			if next := last.PurchasedAt.Add(def.Cadence()); now.Before(next) {
				return &Error{
					Code:       CodeCooldownActive,
					Message:    "one " + string(def.Kind) + " per cadence window",
					RetryAfter: next.Sub(now),
				}
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		inst = models.PowerUpInstance{
			ID:            uuid.NewString(),
			PlayerID:      playerID,
			DefinitionID:  def.ID,
			Kind:          def.Kind,
			Factor:        def.Factor,
			PurchasedAt:   now,
			UsesRemaining: max(def.MaxUses, 1),
		}
		entry, err = s.ledger.RecordDelta(tx, playerID, models.CurrencyTokens, -def.Price, models.ReasonPurchase, inst.ID)
		if err != nil {
			return err
		}
		return tx.Create(&inst).Error
	})
	if err != nil {
		s.log.Info("🛒 purchase rejected",
			zap.String("player_id", playerID), zap.String("definition_id", definitionID), zap.Error(err))
		return nil, err
	}

	s.log.Info("🛒 power-up purchased",
		zap.String("player_id", playerID), zap.String("definition_id", definitionID),
		zap.String("instance_id", inst.ID), zap.Int64("tokens_after", entry.BalanceAfter))
	s.notifier.PublishEntries([]models.LedgerEntry{entry})
	return &inst, nil
}

// ActiveEffectsFor returns the player's unconsumed instances, oldest first.
func (s *InventoryService) ActiveEffectsFor(ctx context.Context, playerID string) ([]models.PowerUpInstance, error) {
	var insts []models.PowerUpInstance
	err := s.store.Read(ctx, "inventory.active", func(db *gorm.DB) error {
		var err error
		insts, err = activeEffects(db, playerID, false)
		return err
	})
	return insts, err
}

func activeEffects(db *gorm.DB, playerID string, forUpdate bool) ([]models.PowerUpInstance, error) {
	q := db.Where("player_id = ? AND consumed = ?", playerID, false)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var insts []models.PowerUpInstance
	if err := q.Order("purchased_at ASC").Find(&insts).Error; err != nil {
		return nil, err
	}
	return insts, nil
}

// Consume flips the write-once consumed flag inside tx. A second call for the
// same instance fails with AlreadyConsumed.
func (s *InventoryService) Consume(tx *gorm.DB, inst *models.PowerUpInstance) error {
	now := s.clock.Now()
	res := tx.Model(&models.PowerUpInstance{}).
		Where("id = ? AND consumed = ?", inst.ID, false).
		Updates(map[string]any{"consumed": true, "consumed_at": now, "uses_remaining": 0})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newError(CodeAlreadyConsumed, "power-up %s already consumed", inst.ID)
	}
	inst.Consumed = true
	inst.ConsumedAt = &now
	inst.UsesRemaining = 0
	return nil
}

// UseOnce spends one use of a multi-use instance, consuming it on the last use.
func (s *InventoryService) UseOnce(tx *gorm.DB, inst *models.PowerUpInstance) error {
	if inst.UsesRemaining <= 1 {
		return s.Consume(tx, inst)
	}
	res := tx.Model(&models.PowerUpInstance{}).
		Where("id = ? AND consumed = ? AND uses_remaining = ?", inst.ID, false, inst.UsesRemaining).
		Update("uses_remaining", inst.UsesRemaining-1)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newError(CodeAlreadyConsumed, "power-up %s has no uses left", inst.ID)
	}
	inst.UsesRemaining--
	return nil
}
