package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/curavoy/curavoy/internal/pkg/metrics/counter"
)

// HandleStripeWebhook ingests gateway events. The raw body goes through
// signature verification before anything is persisted; duplicate event IDs
// are acknowledged with 200 so the gateway stops retrying them.
func HandleStripeWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get("Stripe-Signature")

	result, err := escrowService().HandleWebhook(c.UserContext(), payload, signature)
	if err != nil {
		return respondError(c, err)
	}

	if result.Duplicate {
		if cerr := counter.AddWebhookDuplicate(); cerr != nil {
			log.Warnf("webhook duplicate counter increment failed: %v", cerr)
		}
	} else if cerr := counter.AddWebhookProcessed(); cerr != nil {
		log.Warnf("webhook counter increment failed: %v", cerr)
	}

	return c.JSON(fiber.Map{
		"received":  true,
		"event_id":  result.EventID,
		"type":      result.EventType,
		"duplicate": result.Duplicate,
	})
}
