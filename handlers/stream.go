// handlers/stream.go
package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"powerup-economy/middleware"
	"powerup-economy/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const streamHeartbeat = 15 * time.Second

// StreamBalance streams the player's balance changes as server-sent events.
// The first event is a snapshot of the current balance.
func (h *EconomyHandler) StreamBalance(c *fiber.Ctx) error {
	playerID := middleware.PlayerID(c)

	snapshot, err := h.Ledger.CurrentBalance(c.UserContext(), playerID)
	if err != nil {
		return respondError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	events, cancel := h.Notifier.Subscribe(playerID)
	log := h.Log.With(zap.String("player_id", playerID))
	log.Info("📡 balance stream opened")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(streamHeartbeat)
		defer ticker.Stop()

		writeBalanceStream(w, snapshot, events, ticker.C)
		log.Info("📴 balance stream closed")
	})
	return nil
}

// writeBalanceStream writes the snapshot, then one event per balance change
// and a comment on every heartbeat. It returns when events is closed or the
// client goes away.
func writeBalanceStream(w *bufio.Writer, snapshot services.Balance, events <-chan services.BalanceChanged, heartbeat <-chan time.Time) {
	if err := writeEvent(w, "balance", snapshot); err != nil {
		return
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, "balance_changed", ev); err != nil {
				return
			}
		case <-heartbeat:
			// Flush fails once the client has disconnected.
			if _, err := w.WriteString(":\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return w.Flush()
}
