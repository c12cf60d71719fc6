// middleware/sse_auth.go
package middleware

import (
	"context"
	"strings"

	"powerup-economy/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenValidator checks an end-user access token; *services.AuthServiceClient.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// SSEAuth validates `token` and `device_id` query params for EventSource
// clients, which cannot set headers.
//
//	app.Get("/me/balance/stream", middleware.SSEAuth(authClient, identity, log), h.StreamBalance)
func SSEAuth(validator TokenValidator, players PlayerResolver, logger *zap.Logger) fiber.Handler {
	log := logger.Named("sse_auth")

	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))

		if accessToken == "" || deviceID == "" {
			log.Warn("❌ missing stream credentials", zap.String("path", c.Path()),
				zap.Int("token_len", len(accessToken)), zap.String("device_id", deviceID))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		resp, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			log.Warn("❌ stream token rejected",
				zap.String("token_prefix", accessToken[:min(10, len(accessToken))]),
				zap.String("device_id", deviceID), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		player, err := players.Resolve(c.UserContext(), resp.UserID)
		if err != nil {
			log.Error("❌ failed to resolve player", zap.String("user_id", resp.UserID), zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "could not resolve player",
			})
		}

		c.Locals(LocalUserID, resp.UserID)
		c.Locals(LocalDeviceID, resp.DeviceID)
		c.Locals(LocalPlayerID, player.ID)
		log.Info("✅ stream authenticated", zap.String("user_id", resp.UserID), zap.String("device_id", resp.DeviceID))
		return c.Next()
	}
}
