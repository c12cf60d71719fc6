// middleware/auth.go
package middleware

import (
	"context"
	"strings"

	"powerup-economy/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Locals keys set for handlers.
const (
	LocalUserID   = "user_id"   // auth principal
	LocalPlayerID = "player_id" // internal player id
	LocalDeviceID = "device_id"
)

// PlayerResolver maps an auth principal to its player, creating it on first sight.
type PlayerResolver interface {
	Resolve(ctx context.Context, externalUserID string) (*models.Player, error)
}

// UserContext reads the identity the gateway forwards in X-User-ID and
// resolves it to a player.
func UserContext(players PlayerResolver, logger *zap.Logger) fiber.Handler {
	log := logger.Named("user_ctx")

	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Warn("❌ X-User-ID required but missing", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		player, err := players.Resolve(c.UserContext(), userID)
		if err != nil {
			log.Error("❌ failed to resolve player", zap.String("user_id", userID), zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "could not resolve player",
			})
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalPlayerID, player.ID)
		log.Debug("👤 user context", zap.String("user_id", userID), zap.String("player_id", player.ID), zap.String("path", c.Path()))
		return c.Next()
	}
}

// PlayerID returns the player resolved for this request.
func PlayerID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalPlayerID).(string)
	return id
}
