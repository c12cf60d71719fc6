package services

import (
	"sync"
	"testing"

	"powerup-economy/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestNotifierFanOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier(4, zaptest.NewLogger(t))
	a1, cancelA1 := n.Subscribe("a")
	a2, cancelA2 := n.Subscribe("a")
	b, cancelB := n.Subscribe("b")
	defer cancelB()

	n.PublishEntries([]models.LedgerEntry{
		{PlayerID: "a", Currency: models.CurrencyTokens, Delta: 3, BalanceAfter: 3, Reason: models.ReasonQuizReward},
	})

	assert.Equal(t, int64(3), (<-a1).Balance)
	assert.Equal(t, int64(3), (<-a2).Balance)
	assert.Empty(t, b)

	cancelA1()
	cancelA1()
	_, open := <-a1
	assert.False(t, open)

	cancelA2()
	n.mu.RLock()
	assert.NotContains(t, n.subs, "a")
	n.mu.RUnlock()
}

func TestNotifierDropsWhenFull(t *testing.T) {
	n := NewNotifier(1, zaptest.NewLogger(t))
	ch, cancel := n.Subscribe("a")
	defer cancel()

	n.Publish(BalanceChanged{PlayerID: "a", Delta: 1}, BalanceChanged{PlayerID: "a", Delta: 2})

	assert.Len(t, ch, 1)
	assert.Equal(t, int64(1), (<-ch).Delta)
}

func TestNotifierConcurrentPublishAndCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier(8, zaptest.NewLogger(t))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		ch, cancel := n.Subscribe("a")
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			n.Publish(BalanceChanged{PlayerID: "a", Delta: 1})
			cancel()
		}()
	}
	wg.Wait()
}

func TestNilNotifierIgnoresEntries(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.PublishEntries([]models.LedgerEntry{{PlayerID: "a"}})
	})
}
