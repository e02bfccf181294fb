package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/app/repository"
	"github.com/curavoy/curavoy/internal/pkg/usercontext"
)

type createQuotationRequest struct {
	ProviderID  uint       `json:"provider_id"`
	UserID      uint       `json:"user_id"`
	Procedure   string     `json:"procedure"`
	Description string     `json:"description"`
	AmountMinor int64      `json:"amount_minor"`
	Currency    string     `json:"currency"`
	ValidUntil  *time.Time `json:"valid_until"`
}

// HandleCreateQuotation creates a priced treatment offer. Admin only; offers
// are entered on behalf of providers until provider self-service exists.
func HandleCreateQuotation(c *fiber.Ctx) error {
	var req createQuotationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}

	quotation := &models.Quotation{
		ProviderID:  req.ProviderID,
		UserID:      req.UserID,
		Procedure:   req.Procedure,
		Description: req.Description,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Status:      models.QuotationStatusSent,
		ValidUntil:  req.ValidUntil,
	}
	if err := quotation.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	if err := repository.GetGlobalFactory().GetQuotationRepository().Create(quotation); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(quotation)
}

// HandleListQuotations lists the caller's quotations. Admins can pass
// user_id or provider_id to inspect someone else's.
func HandleListQuotations(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	offset, limit := parsePagination(c)
	repo := repository.GetGlobalFactory().GetQuotationRepository()

	if userCtx.IsAdmin {
		if providerID, err := strconv.ParseUint(c.Query("provider_id"), 10, 64); err == nil && providerID > 0 {
			quotations, qerr := repo.GetByProviderID(uint(providerID), offset, limit)
			if qerr != nil {
				return respondError(c, qerr)
			}
			return c.JSON(fiber.Map{"quotations": quotations, "offset": offset, "limit": limit})
		}
		if userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64); err == nil && userID > 0 {
			quotations, qerr := repo.GetByUserID(uint(userID), offset, limit)
			if qerr != nil {
				return respondError(c, qerr)
			}
			return c.JSON(fiber.Map{"quotations": quotations, "offset": offset, "limit": limit})
		}
	}

	quotations, err := repo.GetByUserID(userCtx.UserID, offset, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"quotations": quotations, "offset": offset, "limit": limit})
}

// HandleGetQuotation returns one quotation for its patient or an admin.
func HandleGetQuotation(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid quotation id"})
	}

	quotation, err := repository.GetGlobalFactory().GetQuotationRepository().GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Quotation not found"})
		}
		return respondError(c, err)
	}
	if quotation.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Quotation not found"})
	}
	return c.JSON(quotation)
}

// HandleAcceptQuotation marks a sent quotation as accepted by its patient.
func HandleAcceptQuotation(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid quotation id"})
	}

	repo := repository.GetGlobalFactory().GetQuotationRepository()
	quotation, err := repo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Quotation not found"})
		}
		return respondError(c, err)
	}
	if quotation.UserID != userCtx.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Quotation not found"})
	}
	if quotation.Status != models.QuotationStatusSent {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "bad_state", "message": "Quotation is not open for acceptance"})
	}
	if quotation.ValidUntil != nil && quotation.ValidUntil.Before(time.Now()) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "bad_state", "message": "Quotation has expired"})
	}

	quotation.Status = models.QuotationStatusAccepted
	if err := repo.Update(quotation); err != nil {
		return respondError(c, err)
	}
	return c.JSON(quotation)
}
