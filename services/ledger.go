package services

import (
	"context"
	"errors"
	"math"

	"powerup-economy/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Balance struct {
	Points int64 `json:"points"`
	Tokens int64 `json:"tokens"`
}

func (b Balance) Of(c models.Currency) int64 {
	if c == models.CurrencyPoints {
		return b.Points
	}
	return b.Tokens
}

// Drift is a player whose cached balance disagrees with the folded ledger.
type Drift struct {
	PlayerID string          `json:"player_id"`
	Currency models.Currency `json:"currency"`
	Cached   int64           `json:"cached"`
	Derived  int64           `json:"derived"`
}

// LedgerService is the source of truth for balances. Entries are append-only
// and the cached totals on Player move in the same transaction as each entry.
type LedgerService struct {
	store    *Store
	locks    *PlayerLocks
	notifier *Notifier
	clock    clockwork.Clock
	log      *zap.Logger
}

func NewLedgerService(store *Store, locks *PlayerLocks, notifier *Notifier, clock clockwork.Clock, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:    store,
		locks:    locks,
		notifier: notifier,
		clock:    clock,
		log:      logger.Named("ledger"),
	}
}

// RecordDelta appends an entry inside tx and returns it; entry.BalanceAfter
// is the new balance. A debit larger than the balance fails with
// InsufficientBalance and writes nothing.
func (l *LedgerService) RecordDelta(tx *gorm.DB, playerID string, currency models.Currency, amount int64, reason, refID string) (models.LedgerEntry, error) {
	if amount == 0 {
		return models.LedgerEntry{}, newError(CodeInvalidArgument, "ledger delta must be non-zero")
	}
	if currency != models.CurrencyPoints && currency != models.CurrencyTokens {
		return models.LedgerEntry{}, newError(CodeInvalidArgument, "unknown currency %q", currency)
	}

	player, err := lockPlayer(tx, playerID)
	if err != nil {
		return models.LedgerEntry{}, err
	}

	current := player.Tokens
	if currency == models.CurrencyPoints {
		current = player.Points
	}
	if amount < 0 && -amount > current {
		return models.LedgerEntry{}, newError(CodeInsufficientBalance,
			"%s balance %d cannot cover %d", currency, current, -amount)
	}
	if amount > 0 && current > math.MaxInt64-amount {
		return models.LedgerEntry{}, newError(CodeInvalidArgument,
			"%s balance %d cannot take %d more", currency, current, amount)
	}

	entry := models.LedgerEntry{
		ID:           uuid.NewString(),
		PlayerID:     playerID,
		Currency:     currency,
		Delta:        amount,
		BalanceAfter: current + amount,
		Reason:       reason,
		RefID:        refID,
		CreatedAt:    l.clock.Now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return models.LedgerEntry{}, err
	}

	updates := map[string]any{}
	if currency == models.CurrencyPoints {
		updates["points"] = entry.BalanceAfter
		updates["title"] = TitleFor(entry.BalanceAfter)
	} else {
		updates["tokens"] = entry.BalanceAfter
	}
	if err := tx.Model(&models.Player{}).Where("id = ?", playerID).Updates(updates).Error; err != nil {
		return models.LedgerEntry{}, err
	}
	return entry, nil
}

// Compensate records a standalone entry, e.g. an admin grant or a correction
// to an already committed submission.
func (l *LedgerService) Compensate(ctx context.Context, playerID string, currency models.Currency, amount int64, reason string) (models.LedgerEntry, error) {
	unlock, err := l.locks.Lock(ctx, playerID)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	defer unlock()

	var entry models.LedgerEntry
	err = l.store.Atomically(ctx, "ledger.compensate", func(tx *gorm.DB) error {
		var err error
		entry, err = l.RecordDelta(tx, playerID, currency, amount, reason, "")
		return err
	})
	if err != nil {
		return models.LedgerEntry{}, err
	}

	l.log.Info("🧾 compensating entry recorded",
		zap.String("player_id", playerID), zap.String("currency", string(currency)),
		zap.Int64("delta", amount), zap.String("reason", reason))
	l.notifier.PublishEntries([]models.LedgerEntry{entry})
	return entry, nil
}

// CurrentBalance reads the cached totals.
func (l *LedgerService) CurrentBalance(ctx context.Context, playerID string) (Balance, error) {
	var player models.Player
	err := l.store.Read(ctx, "ledger.balance", func(db *gorm.DB) error {
		return db.Select("id", "points", "tokens").First(&player, "id = ?", playerID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Balance{}, newError(CodeNotFound, "player %s not found", playerID)
	}
	if err != nil {
		return Balance{}, err
	}
	return Balance{Points: player.Points, Tokens: player.Tokens}, nil
}

// DerivedBalance folds the player's ledger entries.
func (l *LedgerService) DerivedBalance(ctx context.Context, playerID string) (Balance, error) {
	var rows []struct {
		Currency models.Currency
		Total    int64
	}
	err := l.store.Read(ctx, "ledger.derived", func(db *gorm.DB) error {
		return db.Model(&models.LedgerEntry{}).
			Select("currency, COALESCE(SUM(delta), 0) AS total").
			Where("player_id = ?", playerID).
			Group("currency").
			Scan(&rows).Error
	})
	if err != nil {
		return Balance{}, err
	}

	var b Balance
	for _, r := range rows {
		if r.Currency == models.CurrencyPoints {
			b.Points = r.Total
		} else {
			b.Tokens = r.Total
		}
	}
	return b, nil
}

// Reconcile compares every player's cached totals with the folded ledger.
func (l *LedgerService) Reconcile(ctx context.Context) ([]Drift, error) {
	var players []models.Player
	var sums []struct {
		PlayerID string
		Currency models.Currency
		Total    int64
	}
	err := l.store.Read(ctx, "ledger.reconcile", func(db *gorm.DB) error {
		if err := db.Select("id", "points", "tokens").Find(&players).Error; err != nil {
			return err
		}
		return db.Model(&models.LedgerEntry{}).
			Select("player_id, currency, COALESCE(SUM(delta), 0) AS total").
			Group("player_id, currency").
			Scan(&sums).Error
	})
	if err != nil {
		return nil, err
	}

	derived := make(map[string]Balance, len(players))
	for _, s := range sums {
		b := derived[s.PlayerID]
		if s.Currency == models.CurrencyPoints {
			b.Points = s.Total
		} else {
			b.Tokens = s.Total
		}
		derived[s.PlayerID] = b
	}

	var drifts []Drift
	for _, p := range players {
		d := derived[p.ID]
		if p.Points != d.Points {
			drifts = append(drifts, Drift{PlayerID: p.ID, Currency: models.CurrencyPoints, Cached: p.Points, Derived: d.Points})
		}
		if p.Tokens != d.Tokens {
			drifts = append(drifts, Drift{PlayerID: p.ID, Currency: models.CurrencyTokens, Cached: p.Tokens, Derived: d.Tokens})
		}
	}
	return drifts, nil
}

// History returns the player's most recent entries, newest first.
func (l *LedgerService) History(ctx context.Context, playerID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var entries []models.LedgerEntry
	err := l.store.Read(ctx, "ledger.history", func(db *gorm.DB) error {
		return db.Where("player_id = ?", playerID).
			Order("created_at DESC").
			Limit(limit).
			Find(&entries).Error
	})
	return entries, err
}

// lockPlayer loads a player row for update.
func lockPlayer(tx *gorm.DB, playerID string) (*models.Player, error) {
	var player models.Player
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&player, "id = ?", playerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(CodeNotFound, "player %s not found", playerID)
		}
		return nil, err
	}
	return &player, nil
}
