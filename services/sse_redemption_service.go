package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"habit-companion/models"
	"habit-companion/utils"

	"github.com/gofiber/fiber/v2"
)

// RedemptionView is one redemption as pushed to the UI, with the formatted
// countdown and urgency tier precomputed.
type RedemptionView struct {
	models.PendingRedemption
	TimeRemaining string            `json:"time_remaining"`
	UrgencyTier   utils.UrgencyTier `json:"urgency_tier"`
}

// BuildRedemptionView decorates a redemption with its display projections
func BuildRedemptionView(r models.PendingRedemption) RedemptionView {
	return RedemptionView{
		PendingRedemption: r,
		TimeRemaining:     utils.FormatRemaining(r.TimeRemainingMS),
		UrgencyTier:       utils.Urgency(r.TimeRemainingMS),
	}
}

// StreamRedemptionsSSE pushes the live redemption snapshot to the UI while the
// connection stays open. The ticker mirrors the store's countdown cadence so
// the client sees the decrement without polling.
func (s *RedemptionStore) StreamRedemptionsSSE(c *fiber.Ctx) error {
	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				snapshot := s.Snapshot()
				views := make([]RedemptionView, 0, len(snapshot))
				for _, r := range snapshot {
					views = append(views, BuildRedemptionView(r))
				}

				payload, err := json.Marshal(fiber.Map{"redemptions": views})
				if err != nil {
					log.Printf("[SSE] failed to encode snapshot: %v", err)
					continue
				}

				fmt.Fprintf(w, "event: redemptions\ndata: %s\n\n", payload)

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
