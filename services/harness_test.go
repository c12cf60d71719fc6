package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"powerup-economy/models"
	"powerup-economy/storage"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	db          *gorm.DB
	clock       *clockwork.FakeClock
	store       *Store
	locks       *PlayerLocks
	notifier    *Notifier
	ledger      *LedgerService
	inventory   *InventoryService
	targeting   *TargetingRegistry
	coordinator *Coordinator
	gamble      *GambleService
	identity    *IdentityResolver
}

// seqRand returns the queued indexes in order, then repeats the last one.
type seqRand struct {
	next []int
}

func (s *seqRand) IntN(n int) int {
	v := s.next[0]
	if len(s.next) > 1 {
		s.next = s.next[1:]
	}
	return v % n
}

func newHarness(t *testing.T, rng RandomSource) *harness {
	t.Helper()

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "economy.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	log := zaptest.NewLogger(t)
	clock := clockwork.NewFakeClockAt(epoch)
	store := NewStore(db, 2*time.Second, 3, log)
	store.InitialInterval = time.Millisecond
	store.MaxInterval = 5 * time.Millisecond
	locks := NewPlayerLocks()
	notifier := NewNotifier(16, log)
	ledger := NewLedgerService(store, locks, notifier, clock, log)
	inventory := NewInventoryService(store, ledger, locks, notifier, clock, log)
	targeting := NewTargetingRegistry(store, locks, clock, log)
	coordinator := NewCoordinator(store, ledger, inventory, targeting, Resolver{TokenDivisor: 5}, locks, notifier, clock, log)
	if rng == nil {
		rng = &seqRand{next: []int{0}}
	}

	return &harness{
		db:          db,
		clock:       clock,
		store:       store,
		locks:       locks,
		notifier:    notifier,
		ledger:      ledger,
		inventory:   inventory,
		targeting:   targeting,
		coordinator: coordinator,
		gamble:      NewGambleService(store, ledger, inventory, locks, notifier, rng, log),
		identity:    NewIdentityResolver(store, log),
	}
}

// newPlayer creates a player holding the given tokens.
func (h *harness) newPlayer(t *testing.T, externalID string, tokens int64) string {
	t.Helper()
	p, err := h.identity.Resolve(context.Background(), externalID)
	require.NoError(t, err)
	if tokens > 0 {
		_, err = h.ledger.Compensate(context.Background(), p.ID, models.CurrencyTokens, tokens, models.ReasonAdminGrant)
		require.NoError(t, err)
	}
	return p.ID
}

func (h *harness) balance(t *testing.T, playerID string) Balance {
	t.Helper()
	b, err := h.ledger.CurrentBalance(context.Background(), playerID)
	require.NoError(t, err)
	return b
}

func (h *harness) entryCount(t *testing.T, playerID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.LedgerEntry{}).Where("player_id = ?", playerID).Count(&n).Error)
	return n
}

func (h *harness) instance(t *testing.T, id string) models.PowerUpInstance {
	t.Helper()
	var inst models.PowerUpInstance
	require.NoError(t, h.db.First(&inst, "id = ?", id).Error)
	return inst
}

func (h *harness) purchase(t *testing.T, playerID, definitionID string) *models.PowerUpInstance {
	t.Helper()
	inst, err := h.inventory.Purchase(context.Background(), playerID, definitionID)
	require.NoError(t, err)
	return inst
}

func (h *harness) submit(t *testing.T, playerID, topicID, attemptID string, raw int64) *SubmitResult {
	t.Helper()
	res, err := h.coordinator.Submit(context.Background(), SubmitRequest{
		PlayerID: playerID, TopicID: topicID, AttemptID: attemptID, RawScore: raw,
	})
	require.NoError(t, err)
	return res
}
