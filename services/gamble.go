package services

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"sync"

	"powerup-economy/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GambleResult struct {
	InstanceID    string  `json:"instance_id"`
	Outcome       int64   `json:"outcome"`
	TokenDelta    int64   `json:"token_delta"` // Outcome clamped so the balance stays >= 0
	UsesRemaining int     `json:"uses_remaining"`
	Balance       Balance `json:"balance"`
}

// GambleService spends uses of purchased Gamble sessions. Outcomes never
// interact with quiz scoring.
type GambleService struct {
	store     *Store
	ledger    *LedgerService
	inventory *InventoryService
	locks     *PlayerLocks
	notifier  *Notifier
	log       *zap.Logger

	mu  sync.Mutex
	rng RandomSource
}

// NewGambleService uses rng for outcomes; nil seeds a PCG from crypto/rand.
func NewGambleService(store *Store, ledger *LedgerService, inventory *InventoryService, locks *PlayerLocks,
	notifier *Notifier, rng RandomSource, logger *zap.Logger) *GambleService {
	if rng == nil {
		rng = newSeededRand()
	}
	return &GambleService{
		store:     store,
		ledger:    ledger,
		inventory: inventory,
		locks:     locks,
		notifier:  notifier,
		rng:       rng,
		log:       logger.Named("gamble"),
	}
}

func newSeededRand() *rand.Rand {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic("read random seed: " + err.Error())
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:])))
}

func (g *GambleService) draw() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GambleOutcome(g.rng)
}

// Play resolves one gamble against the player's oldest open Gamble session.
// With no session left it fails with NoActiveSession and changes nothing.
func (g *GambleService) Play(ctx context.Context, playerID string) (*GambleResult, error) {
	unlock, err := g.locks.Lock(ctx, playerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	outcome := g.draw()

	var (
		result  GambleResult
		entries []models.LedgerEntry
	)
	err = g.store.Atomically(ctx, "gamble.play", func(tx *gorm.DB) error {
		entries = entries[:0]

		player, err := lockPlayer(tx, playerID)
		if err != nil {
			return err
		}

		var session models.PowerUpInstance
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("player_id = ? AND kind = ? AND consumed = ? AND uses_remaining > 0", playerID, models.KindGamble, false).
			Order("purchased_at ASC").
			First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(CodeNoActiveSession, "no gamble uses left for player %s", playerID)
		}
		if err != nil {
			return err
		}

		delta := outcome
		if delta < 0 && -delta > player.Tokens {
			delta = -player.Tokens
		}

		balance := Balance{Points: player.Points, Tokens: player.Tokens}
		if delta != 0 {
			e, err := g.ledger.RecordDelta(tx, playerID, models.CurrencyTokens, delta, models.ReasonGamble, session.ID)
			if err != nil {
				return err
			}
			entries = append(entries, e)
			balance.Tokens = e.BalanceAfter
		}
		if err := g.inventory.UseOnce(tx, &session); err != nil {
			return err
		}

		result = GambleResult{
			InstanceID:    session.ID,
			Outcome:       outcome,
			TokenDelta:    delta,
			UsesRemaining: session.UsesRemaining,
			Balance:       balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.log.Info("🎲 gamble resolved",
		zap.String("player_id", playerID), zap.String("instance_id", result.InstanceID),
		zap.Int64("outcome", outcome), zap.Int64("token_delta", result.TokenDelta),
		zap.Int("uses_remaining", result.UsesRemaining))
	g.notifier.PublishEntries(entries)
	return &result, nil
}
