package services

import (
	"sync"
	"time"

	"powerup-economy/models"

	"go.uber.org/zap"
)

// BalanceChanged is emitted once per committed ledger entry.
type BalanceChanged struct {
	PlayerID string          `json:"player_id"`
	Currency models.Currency `json:"currency"`
	Delta    int64           `json:"delta"`
	Balance  int64           `json:"balance"`
	Reason   string          `json:"reason"`
	At       time.Time       `json:"at"`
}

// Notifier fans balance changes out to per-player subscribers (SSE streams).
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[string]map[chan BalanceChanged]struct{}
	buffer int
	log    *zap.Logger
}

func NewNotifier(buffer int, logger *zap.Logger) *Notifier {
	return &Notifier{
		subs:   make(map[string]map[chan BalanceChanged]struct{}),
		buffer: buffer,
		log:    logger.Named("notifier"),
	}
}

// Subscribe returns a channel of the player's balance changes and a cancel
// func that closes it.
func (n *Notifier) Subscribe(playerID string) (<-chan BalanceChanged, func()) {
	ch := make(chan BalanceChanged, n.buffer)

	n.mu.Lock()
	if n.subs[playerID] == nil {
		n.subs[playerID] = make(map[chan BalanceChanged]struct{})
	}
	n.subs[playerID][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[playerID], ch)
			if len(n.subs[playerID]) == 0 {
				delete(n.subs, playerID)
			}
			n.mu.Unlock()
			close(ch)
		})
	}
}

func (n *Notifier) Publish(events ...BalanceChanged) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ev := range events {
		for ch := range n.subs[ev.PlayerID] {
			select {
			case ch <- ev:
			default:
				n.log.Warn("⚠️ subscriber buffer full, dropping balance event",
					zap.String("player_id", ev.PlayerID))
			}
		}
	}
}

// PublishEntries converts committed ledger entries into events.
func (n *Notifier) PublishEntries(entries []models.LedgerEntry) {
	if n == nil || len(entries) == 0 {
		return
	}
	events := make([]BalanceChanged, 0, len(entries))
	for _, e := range entries {
		events = append(events, BalanceChanged{
			PlayerID: e.PlayerID,
			Currency: e.Currency,
			Delta:    e.Delta,
			Balance:  e.BalanceAfter,
			Reason:   e.Reason,
			At:       e.CreatedAt,
		})
	}
	n.Publish(events...)
}
