package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/app/repository"
	"github.com/curavoy/curavoy/internal/pkg/database"
	"github.com/curavoy/curavoy/internal/pkg/jobqueue"
)

// HandleGetSettings returns the current application settings. Admin only.
func HandleGetSettings(c *fiber.Ctx) error {
	settings, err := repository.GetGlobalFactory().GetSettingRepository().Get()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"site_title":           settings.SiteTitle,
		"payouts_enabled":      settings.PayoutsEnabled,
		"payout_interval_days": settings.PayoutIntervalDays,
	})
}

type updateSettingsAdminRequest struct {
	SiteTitle          *string `json:"site_title"`
	PayoutsEnabled     *bool   `json:"payouts_enabled"`
	PayoutIntervalDays *int    `json:"payout_interval_days"`
}

// HandleUpdateSettings updates application settings. Admin only.
func HandleUpdateSettings(c *fiber.Ctx) error {
	var req updateSettingsAdminRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}

	repo := repository.GetGlobalFactory().GetSettingRepository()
	settings, err := repo.Get()
	if err != nil {
		return respondError(c, err)
	}

	updated := models.AppSettings{
		SiteTitle:          settings.SiteTitle,
		PayoutsEnabled:     settings.PayoutsEnabled,
		PayoutIntervalDays: settings.PayoutIntervalDays,
	}
	if req.SiteTitle != nil {
		updated.SiteTitle = *req.SiteTitle
	}
	if req.PayoutsEnabled != nil {
		updated.PayoutsEnabled = *req.PayoutsEnabled
	}
	if req.PayoutIntervalDays != nil {
		updated.PayoutIntervalDays = *req.PayoutIntervalDays
	}

	if err := repo.Save(&updated); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}
	return HandleGetSettings(c)
}

// HandleGetDailyStats returns aggregated daily counters for the admin
// dashboard. Accepts an optional days query param (default 30, max 365).
func HandleGetDailyStats(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	if days <= 0 || days > 365 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	var stats []models.DailyStat
	if err := database.GetDB().
		Where("date >= ?", since).
		Order("date ASC, metric ASC").
		Find(&stats).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"stats": stats, "since": since})
}

// HandleReprocessWebhooks re-runs unprocessed webhook events. Admin only;
// the periodic sweep does the same on a timer.
func HandleReprocessWebhooks(c *fiber.Ctx) error {
	minAgeMinutes := c.QueryInt("min_age_minutes", 15)
	if minAgeMinutes < 0 {
		minAgeMinutes = 0
	}
	limit := c.QueryInt("limit", 100)

	n, err := escrowService().ReprocessStuckEvents(c.UserContext(), time.Duration(minAgeMinutes)*time.Minute, 5, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"reprocessed": n})
}

// HandleGetQueueStatus reports background queue depth. Admin only.
func HandleGetQueueStatus(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetQueueRepository()

	pending, err := repo.GetListLength(jobqueue.JobQueueKey)
	if err != nil {
		return respondError(c, err)
	}
	processing, err := repo.GetListLength(jobqueue.JobProcessingKey)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
	})
}

// HandleClearQueue removes queued and stored jobs. Admin only; intended for
// draining poisoned jobs during incidents.
func HandleClearQueue(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetQueueRepository()

	keys, err := repo.FindKeysByPatterns([]string{jobqueue.JobKeyPrefix + "*", jobqueue.JobQueueKey, jobqueue.JobProcessingKey})
	if err != nil {
		return respondError(c, err)
	}
	deleted, err := repo.DeleteKeys(keys)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}
