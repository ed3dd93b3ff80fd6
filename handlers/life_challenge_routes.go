// handlers/life_challenge_routes.go
package handlers

import (
	"errors"

	"habit-companion/middleware"
	"habit-companion/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLifeChallengeRoutes(app *fiber.App, lifeService *services.LifeChallengeService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/s/life-challenges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		states, err := lifeService.EvaluateAll(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to evaluate life challenges",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"challenges": states})
	})

	secured.Get("/s/life-challenges/:code/preview", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		outcome, err := lifeService.Preview(userID, c.Params("code"))
		if err != nil {
			return lifeChallengeError(c, outcome, err)
		}
		return c.JSON(outcome)
	})

	// Redeem. Partial grants need ?confirm=true after the shortfall was shown.
	secured.Post("/s/life-challenges/:code/redeem", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		confirmed := c.QueryBool("confirm")

		outcome, err := lifeService.Redeem(userID, c.Params("code"), confirmed)
		if err != nil {
			return lifeChallengeError(c, outcome, err)
		}
		return c.JSON(outcome)
	})
}

func lifeChallengeError(c *fiber.Ctx, outcome *services.RedeemOutcome, err error) error {
	switch {
	case errors.Is(err, services.ErrUnknownChallenge):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown life challenge",
		})
	case errors.Is(err, services.ErrChallengeNotRedeemable):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "this challenge is not redeemable right now",
		})
	case errors.Is(err, services.ErrNoLifeCapacity):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "all life slots are full, redeeming would grant nothing",
			"outcome": outcome,
		})
	case errors.Is(err, services.ErrShortfallNeedsConfirm):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":         "only part of the reward fits, confirm to proceed",
			"needs_confirm": true,
			"outcome":       outcome,
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to redeem life challenge",
			"cause": err.Error(),
		})
	}
}
