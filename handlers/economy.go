// handlers/economy.go
package handlers

import (
	"strconv"

	"powerup-economy/middleware"
	"powerup-economy/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// EconomyHandler exposes the economy services over HTTP.
type EconomyHandler struct {
	Ledger      *services.LedgerService
	Inventory   *services.InventoryService
	Targeting   *services.TargetingRegistry
	Coordinator *services.Coordinator
	Gamble      *services.GambleService
	Leaderboard *services.LeaderboardService
	Notifier    *services.Notifier
	Log         *zap.Logger
}

type submitAttemptRequest struct {
	TopicID   string `json:"topic_id"`
	RawScore  int64  `json:"raw_score"`
	AttemptID string `json:"attempt_id"`
}

type purchaseRequest struct {
	DefinitionID string `json:"definition_id"`
}

type sabotageRequest struct {
	TargetPlayerID string `json:"target_player_id"`
}

func SetupEconomyRoutes(app *fiber.App, h *EconomyHandler, players middleware.PlayerResolver,
	streamAuth middleware.TokenValidator) {
	// 🔓 No player context needed
	app.Get("/shop/catalog", h.Catalog)
	app.Get("/leaderboard", h.TopPlayers)

	// 📡 EventSource clients authenticate with query params instead of gateway headers
	app.Get("/me/balance/stream", middleware.SSEAuth(streamAuth, players, h.Log), h.StreamBalance)

	// 🔐 Everything below requires X-User-ID
	secured := app.Group("/", middleware.UserContext(players, h.Log))

	secured.Post("/quiz/attempts", h.SubmitAttempt)
	secured.Post("/shop/purchases", h.Purchase)
	secured.Post("/powerups/gamble", h.PlayGamble)
	secured.Post("/powerups/:id/sabotage", h.ActivateSabotage)

	secured.Get("/me/balance", h.Balance)
	secured.Get("/me/effects", h.ActiveEffects)
	secured.Get("/me/ledger", h.LedgerHistory)
	secured.Get("/me/targetable/:player_id", h.Targetable)
}

func (h *EconomyHandler) Catalog(c *fiber.Ctx) error {
	defs, err := h.Inventory.Catalog(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(defs)
}

func (h *EconomyHandler) TopPlayers(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	entries, err := h.Leaderboard.Top(c.UserContext(), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(entries)
}

func (h *EconomyHandler) SubmitAttempt(c *fiber.Ctx) error {
	var req submitAttemptRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.Coordinator.Submit(c.UserContext(), services.SubmitRequest{
		PlayerID:  middleware.PlayerID(c),
		TopicID:   req.TopicID,
		RawScore:  req.RawScore,
		AttemptID: req.AttemptID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *EconomyHandler) Purchase(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil || req.DefinitionID == "" {
		return badRequest(c, "definition_id is required")
	}

	inst, err := h.Inventory.Purchase(c.UserContext(), middleware.PlayerID(c), req.DefinitionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inst)
}

func (h *EconomyHandler) ActivateSabotage(c *fiber.Ctx) error {
	var req sabotageRequest
	if err := c.BodyParser(&req); err != nil || req.TargetPlayerID == "" {
		return badRequest(c, "target_player_id is required")
	}

	inst, err := h.Targeting.ActivateSabotage(c.UserContext(), middleware.PlayerID(c), req.TargetPlayerID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inst)
}

func (h *EconomyHandler) PlayGamble(c *fiber.Ctx) error {
	res, err := h.Gamble.Play(c.UserContext(), middleware.PlayerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

func (h *EconomyHandler) Balance(c *fiber.Ctx) error {
	b, err := h.Ledger.CurrentBalance(c.UserContext(), middleware.PlayerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(b)
}

func (h *EconomyHandler) ActiveEffects(c *fiber.Ctx) error {
	insts, err := h.Inventory.ActiveEffectsFor(c.UserContext(), middleware.PlayerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(insts)
}

func (h *EconomyHandler) LedgerHistory(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	entries, err := h.Ledger.History(c.UserContext(), middleware.PlayerID(c), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(entries)
}

func (h *EconomyHandler) Targetable(c *fiber.Ctx) error {
	playerID := c.Params("player_id")
	ok, err := h.Targeting.IsTargetable(c.UserContext(), playerID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"player_id":  playerID,
		"targetable": ok,
	})
}
