package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/database"
	"github.com/curavoy/curavoy/internal/pkg/metrics/counter"
	"github.com/curavoy/curavoy/internal/pkg/payout"
)

// HandleRunPayouts executes due payouts in one bounded batch. Admin only.
// The periodic sweep does the same thing; this endpoint exists for manual
// drains and incident recovery.
func HandleRunPayouts(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	results, err := payoutExecutor().RunDue(c.UserContext(), limit)
	if err != nil {
		return respondError(c, err)
	}

	paid := 0
	for _, r := range results {
		if r.Status == models.PayoutStatusPaid {
			paid++
			if cerr := counter.AddPayoutExecuted(); cerr != nil {
				log.Warnf("payout counter increment failed: %v", cerr)
			}
		}
	}

	return c.JSON(fiber.Map{
		"processed": len(results),
		"paid":      paid,
		"results":   results,
	})
}

// HandleListPayouts lists payouts, newest first. Admin only. An optional
// provider_id query param narrows the listing to one provider.
func HandleListPayouts(c *fiber.Ctx) error {
	offset, limit := parsePagination(c)
	repo := payout.NewRepository(database.GetDB())

	var (
		payouts []models.Payout
		err     error
	)
	if providerID, perr := strconv.ParseUint(c.Query("provider_id"), 10, 64); perr == nil && providerID > 0 {
		payouts, err = repo.ListByProvider(uint(providerID), offset, limit)
	} else {
		payouts, err = repo.List(offset, limit)
	}
	if err != nil {
		return respondError(c, err)
	}

	items := make([]fiber.Map, 0, len(payouts))
	for i := range payouts {
		items = append(items, payoutJSON(&payouts[i]))
	}
	return c.JSON(fiber.Map{"payouts": items, "offset": offset, "limit": limit})
}
