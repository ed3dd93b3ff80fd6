// handlers/redemption_routes.go
package handlers

import (
	"errors"
	"log"

	"habit-companion/middleware"
	"habit-companion/services"
	"habit-companion/utils"

	"github.com/gofiber/fiber/v2"
)

// apiErrorResponse maps a redemption-service error onto an HTTP response with
// the machine code and readable text. Terminal business errors come back as
// blocking conflicts; anything without a code is a plain upstream failure.
func apiErrorResponse(c *fiber.Ctx, err error) error {
	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		status := fiber.StatusBadGateway
		switch {
		case services.IsTerminalBusinessError(err), apiErr.Code == services.ErrCodeValidationAlreadyOpen:
			status = fiber.StatusConflict
		case apiErr.HTTPStatus >= 400 && apiErr.HTTPStatus < 500:
			status = apiErr.HTTPStatus
		}
		return c.Status(status).JSON(fiber.Map{
			"error": apiErr.UserMessage(),
			"code":  apiErr.Code,
		})
	}
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": "redemption service unavailable",
		"cause": err.Error(),
	})
}

func SetupRedemptionRoutes(app *fiber.App, store *services.RedemptionStore, workflows *services.WorkflowManager) {
	// 🔓 Read-only views — no user context needed, the store is per-user already
	app.Get("/redemptions", func(c *fiber.Ctx) error {
		snapshot := store.Snapshot()
		all := make([]services.RedemptionView, 0, len(snapshot))
		for _, r := range snapshot {
			all = append(all, services.BuildRedemptionView(r))
		}

		actionRequired := make([]services.RedemptionView, 0)
		for _, r := range store.ActionRequired() {
			actionRequired = append(actionRequired, services.BuildRedemptionView(r))
		}
		urgent := make([]services.RedemptionView, 0)
		for _, r := range store.Urgent() {
			urgent = append(urgent, services.BuildRedemptionView(r))
		}

		var assigned *services.RedemptionView
		if a := store.AssignedRedemption(); a != nil {
			v := services.BuildRedemptionView(*a)
			assigned = &v
		}

		return c.JSON(fiber.Map{
			"loading":         store.Loading(),
			"redemptions":     all,
			"action_required": actionRequired,
			"urgent":          urgent,
			"assigned":        assigned,
		})
	})

	app.Get("/redemptions/stream", store.StreamRedemptionsSSE)

	// 🔐 Secured routes — require user context, enforced via middleware
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/s/redemptions/refresh", func(c *fiber.Ctx) error {
		if err := store.Refresh(c.Context(), true); err != nil {
			return apiErrorResponse(c, err)
		}
		return c.JSON(fiber.Map{"refreshed": true})
	})

	secured.Post("/s/redemptions/:id/accept-penalty", func(c *fiber.Ctx) error {
		resp, err := store.AcceptPenalty(c.Context(), c.Params("id"))
		if err != nil {
			return apiErrorResponse(c, err)
		}
		return c.JSON(fiber.Map{
			"current_lives": resp.CurrentLives,
			"user_depleted": resp.IsDead,
		})
	})

	secured.Post("/s/redemptions/:id/choose-challenge", func(c *fiber.Ctx) error {
		var body struct {
			ChallengeID string `json:"challenge_id"`
		}
		if err := c.BodyParser(&body); err != nil || body.ChallengeID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "challenge_id is required",
			})
		}

		resp, err := store.ChooseChallenge(c.Context(), c.Params("id"), body.ChallengeID)
		if err != nil {
			return apiErrorResponse(c, err)
		}
		return c.JSON(fiber.Map{
			"assigned_challenge": resp.AssignedChallenge,
			"user_challenge_id":  resp.UserChallengeID,
		})
	})

	// Proof submission: images land in R2 first, then the resulting URLs go to
	// the validation workflow. Image limits are enforced before any upload.
	secured.Post("/s/redemptions/:id/proof", func(c *fiber.Ctx) error {
		redemptionID := c.Params("id")
		proofText := c.FormValue("proof_text")

		form, err := c.MultipartForm()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "multipart form required",
			})
		}
		files := form.File["images"]
		if len(files) < 1 || len(files) > 2 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "between 1 and 2 proof images are required",
			})
		}
		for _, f := range files {
			if err := utils.ValidateProofImage(f); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
		}

		habitName := redemptionID
		for _, r := range store.Snapshot() {
			if r.ID == redemptionID {
				habitName = r.HabitName
				break
			}
		}

		urls := make([]string, 0, len(files))
		for _, f := range files {
			key := utils.ProofImageKey(habitName, f.Filename)
			url, err := utils.UploadProofImage(c.Context(), f, key)
			if err != nil {
				log.Printf("[PROOF] upload failed for %s: %v", redemptionID, err)
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"error": "failed to upload proof image",
				})
			}
			urls = append(urls, url)
		}

		w := workflows.Get(redemptionID)
		if err := w.SubmitProof(c.Context(), proofText, urls); err != nil {
			var apiErr *services.APIError
			if errors.As(err, &apiErr) {
				return apiErrorResponse(c, err)
			}
			// Client-side contract violation (text too short etc.)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "proof does not meet the submission contract",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"state":      w.State(),
			"validation": w.Validation(),
		})
	})

	secured.Get("/s/redemptions/:id/validation", func(c *fiber.Ctx) error {
		w := workflows.Get(c.Params("id"))
		if w.State() == services.WorkflowIdle {
			if err := w.CheckStatus(c.Context()); err != nil {
				return apiErrorResponse(c, err)
			}
		}
		return c.JSON(fiber.Map{
			"state":      w.State(),
			"polling":    w.Polling(),
			"validation": w.Validation(),
		})
	})

	// Explicit status re-check (used for the rejected -> checking retry path)
	secured.Post("/s/redemptions/:id/validation/check", func(c *fiber.Ctx) error {
		w := workflows.Get(c.Params("id"))
		if err := w.CheckStatus(c.Context()); err != nil {
			return apiErrorResponse(c, err)
		}
		return c.JSON(fiber.Map{
			"state":      w.State(),
			"polling":    w.Polling(),
			"validation": w.Validation(),
		})
	})

	secured.Delete("/s/redemptions/:id/validation", func(c *fiber.Ctx) error {
		workflows.Teardown(c.Params("id"))
		return c.JSON(fiber.Map{"reset": true})
	})
}
