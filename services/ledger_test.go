package services

import (
	"context"
	"math"
	"testing"
	"time"

	"powerup-economy/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestLedgerRecordDelta(t *testing.T) {
	h := newHarness(t, nil)
	p := h.newPlayer(t, "firebase-1", 0)

	var entry models.LedgerEntry
	err := h.store.Atomically(context.Background(), "test", func(tx *gorm.DB) error {
		var err error
		entry, err = h.ledger.RecordDelta(tx, p, models.CurrencyPoints, 120, models.ReasonQuizReward, "a1")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, int64(120), entry.BalanceAfter)
	assert.Equal(t, "a1", entry.RefID)
	assert.Equal(t, epoch, entry.CreatedAt.UTC())

	player, err := h.identity.Player(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(120), player.Points)
	assert.Equal(t, "Bronze", player.Title)
}

func TestLedgerRejectsOverdraftAtomically(t *testing.T) {
	h := newHarness(t, nil)
	p := h.newPlayer(t, "firebase-1", 10)

	_, err := h.ledger.Compensate(context.Background(), p, models.CurrencyTokens, -11, models.ReasonCompensation)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	assert.Equal(t, Balance{Tokens: 10}, h.balance(t, p))
	assert.Equal(t, int64(1), h.entryCount(t, p))

	_, err = h.ledger.Compensate(context.Background(), p, models.CurrencyTokens, -10, models.ReasonCompensation)
	require.NoError(t, err)
	assert.Equal(t, Balance{}, h.balance(t, p))
}

func TestLedgerRejectsOverflow(t *testing.T) {
	h := newHarness(t, nil)
	p := h.newPlayer(t, "firebase-1", 0)

	_, err := h.ledger.Compensate(context.Background(), p, models.CurrencyPoints, math.MaxInt64-5, models.ReasonAdminGrant)
	require.NoError(t, err)

	_, err = h.ledger.Compensate(context.Background(), p, models.CurrencyPoints, 100, models.ReasonAdminGrant)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, Balance{Points: math.MaxInt64 - 5}, h.balance(t, p))
	assert.Equal(t, int64(1), h.entryCount(t, p))

	_, err = h.ledger.Compensate(context.Background(), p, models.CurrencyPoints, 5, models.ReasonAdminGrant)
	require.NoError(t, err)
	assert.Equal(t, Balance{Points: math.MaxInt64}, h.balance(t, p))
}

func TestLedgerRejectsZeroAndUnknown(t *testing.T) {
	h := newHarness(t, nil)
	p := h.newPlayer(t, "firebase-1", 0)

	_, err := h.ledger.Compensate(context.Background(), p, models.CurrencyTokens, 0, models.ReasonCompensation)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.ledger.Compensate(context.Background(), p, models.Currency("gems"), 5, models.ReasonCompensation)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.ledger.Compensate(context.Background(), "missing", models.CurrencyTokens, 5, models.ReasonCompensation)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerCachedBalanceMatchesFold(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.newPlayer(t, "alice", 0)
	bob := h.newPlayer(t, "bob", 0)

	deltas := []int64{40, -15, 7, 3, -20, 100, -1}
	var sum int64
	for _, d := range deltas {
		sum += d
		_, err := h.ledger.Compensate(context.Background(), alice, models.CurrencyTokens, d, models.ReasonCompensation)
		require.NoError(t, err)
		_, err = h.ledger.Compensate(context.Background(), bob, models.CurrencyPoints, d, models.ReasonCompensation)
		require.NoError(t, err)
	}

	for _, p := range []string{alice, bob} {
		cached := h.balance(t, p)
		derived, err := h.ledger.DerivedBalance(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, cached, derived)
	}
	assert.Equal(t, sum, h.balance(t, alice).Tokens)
	assert.Equal(t, sum, h.balance(t, bob).Points)

	drifts, err := h.ledger.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestLedgerReconcileReportsDrift(t *testing.T) {
	h := newHarness(t, nil)
	p := h.newPlayer(t, "alice", 12)

	require.NoError(t, h.db.Model(&models.Player{}).Where("id = ?", p).Update("tokens", 30).Error)

	drifts, err := h.ledger.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Drift{{PlayerID: p, Currency: models.CurrencyTokens, Cached: 30, Derived: 12}}, drifts)
}

func TestLedgerPublishesBalanceChanges(t *testing.T) {
	h := newHarness(t, nil)
	p := h.newPlayer(t, "alice", 0)

	events, cancel := h.notifier.Subscribe(p)
	defer cancel()

	_, err := h.ledger.Compensate(context.Background(), p, models.CurrencyTokens, 9, models.ReasonAdminGrant)
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, p, ev.PlayerID)
	assert.Equal(t, int64(9), ev.Delta)
	assert.Equal(t, int64(9), ev.Balance)
	assert.Equal(t, models.ReasonAdminGrant, ev.Reason)
}

func TestLedgerHistory(t *testing.T) {
	h := newHarness(t, nil)
	p := h.newPlayer(t, "alice", 5)
	h.clock.Advance(time.Minute)
	_, err := h.ledger.Compensate(context.Background(), p, models.CurrencyTokens, 6, models.ReasonAdminGrant)
	require.NoError(t, err)

	entries, err := h.ledger.History(context.Background(), p, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(11), entries[0].BalanceAfter)
	assert.Equal(t, int64(5), entries[1].BalanceAfter)
}
