package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/app/repository"
)

// HandleListProviders lists marketplace providers.
func HandleListProviders(c *fiber.Ctx) error {
	offset, limit := parsePagination(c)
	repo := repository.GetGlobalFactory().GetProviderRepository()

	providers, err := repo.List(offset, limit)
	if err != nil {
		return respondError(c, err)
	}
	total, err := repo.Count()
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"providers": providers, "total": total, "offset": offset, "limit": limit})
}

// HandleGetProviderStatus returns a provider's gateway onboarding state.
// Operators use it to diagnose why payouts to a provider fail.
func HandleGetProviderStatus(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid provider id"})
	}

	repo := repository.GetGlobalFactory().GetProviderRepository()
	provider, err := repo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Provider not found"})
		}
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":                  provider.ID,
		"name":                provider.Name,
		"status":              provider.Status,
		"stripe_account_id":   provider.StripeAccountID,
		"charges_enabled":     provider.ChargesEnabled,
		"payouts_enabled":     provider.PayoutsEnabled,
		"details_submitted":   provider.DetailsSubmitted,
		"onboarded_at":        formatTimePtr(provider.OnboardedAt),
		"can_receive_payouts": provider.CanReceivePayouts(),
	})
}

type createProviderRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Country   string `json:"country"`
	City      string `json:"city"`
	Specialty string `json:"specialty"`
}

// HandleCreateProvider registers a new provider. Admin only. Gateway
// onboarding fields start empty and are filled by account webhooks.
func HandleCreateProvider(c *fiber.Ctx) error {
	var req createProviderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}

	provider := &models.Provider{
		Name:      req.Name,
		Email:     req.Email,
		Country:   req.Country,
		City:      req.City,
		Specialty: req.Specialty,
		Status:    models.ProviderStatusActive,
	}
	if err := provider.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	if err := repository.GetGlobalFactory().GetProviderRepository().Create(provider); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(provider)
}
