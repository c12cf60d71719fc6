// handlers/errors.go
package handlers

import (
	"errors"
	"math"
	"strconv"

	"powerup-economy/services"

	"github.com/gofiber/fiber/v2"
)

var statusByCode = map[services.Code]int{
	services.CodeInsufficientBalance: fiber.StatusPaymentRequired,
	services.CodeCooldownActive:      fiber.StatusTooManyRequests,
	services.CodeAlreadyConsumed:     fiber.StatusConflict,
	services.CodeAlreadyTargeted:     fiber.StatusConflict,
	services.CodeTargetUnavailable:   fiber.StatusUnprocessableEntity,
	services.CodeNoActiveSession:     fiber.StatusConflict,
	services.CodeDuplicateSubmission: fiber.StatusConflict,
	services.CodeTransientFailure:    fiber.StatusServiceUnavailable,
	services.CodeNotFound:            fiber.StatusNotFound,
	services.CodeInvalidArgument:     fiber.StatusBadRequest,
}

// respondError writes err as {"error", "code"} with the status for its code.
// Errors without a code are internal and their text is not exposed.
func respondError(c *fiber.Ctx, err error) error {
	var e *services.Error
	if !errors.As(err, &e) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}

	status, ok := statusByCode[e.Code]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	switch {
	case e.RetryAfter > 0:
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	case e.Code == services.CodeTransientFailure:
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return c.Status(status).JSON(fiber.Map{
		"error": e.Message,
		"code":  e.Code,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  services.CodeInvalidArgument,
	})
}
