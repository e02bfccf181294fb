package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/app/repository"
	"github.com/curavoy/curavoy/internal/pkg/database"
	"github.com/curavoy/curavoy/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return respondError(c, err)
	}

	settings, err := models.GetOrCreateUserSettings(database.GetDB(), userCtx.UserID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":                   account.ID,
		"username":             account.Name,
		"email":                account.Email,
		"status":               account.Status,
		"is_admin":             account.IsAdmin(),
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"notify_by_email":      settings.NotifyByEmail,
		"api_key_prefix":       settings.APIKeyPrefix,
		"api_key_created_at":   formatTimePtr(settings.APIKeyCreatedAt),
		"api_key_last_used_at": formatTimePtr(settings.APIKeyLastUsedAt),
	})
}

// HandleIssueAPIKey generates a fresh API key for the authenticated user,
// replacing any previous one. The raw secret appears only in this response.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	db := database.GetDB()

	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return respondError(c, err)
	}

	rawKey, err := settings.IssueAPIKey()
	if err != nil {
		return respondError(c, err)
	}
	if err := db.Save(settings).Error; err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"api_key":        rawKey,
		"api_key_prefix": settings.APIKeyPrefix,
		"created_at":     formatTimePtr(settings.APIKeyCreatedAt),
	})
}

// HandleRevokeAPIKey revokes the authenticated user's API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	db := database.GetDB()

	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return respondError(c, err)
	}

	settings.RevokeAPIKey()
	if err := db.Save(settings).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"revoked": true})
}

type updateSettingsRequest struct {
	NotifyByEmail *bool `json:"notify_by_email"`
}

// HandleUpdateUserSettings updates the caller's notification preferences.
func HandleUpdateUserSettings(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req updateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return respondError(c, err)
	}

	if req.NotifyByEmail != nil {
		settings.NotifyByEmail = *req.NotifyByEmail
	}
	if err := db.Save(settings).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"notify_by_email": settings.NotifyByEmail})
}

// HandleListNotifications lists the caller's notifications, newest first.
func HandleListNotifications(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	offset, limit := parsePagination(c)

	repo := repository.GetGlobalFactory().GetNotificationRepository()
	notifications, err := repo.GetByUserID(userCtx.UserID, offset, limit)
	if err != nil {
		return respondError(c, err)
	}
	unread, err := repo.CountUnread(userCtx.UserID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"unread":        unread,
		"offset":        offset,
		"limit":         limit,
	})
}

// HandleMarkNotificationRead marks one of the caller's notifications as read.
func HandleMarkNotificationRead(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid notification id"})
	}

	repo := repository.GetGlobalFactory().GetNotificationRepository()
	if err := repo.MarkRead(userCtx.UserID, uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Notification not found"})
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"read": true})
}
