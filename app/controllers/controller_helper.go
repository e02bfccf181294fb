package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/curavoy/curavoy/internal/pkg/apperror"
	"github.com/curavoy/curavoy/internal/pkg/audit"
	"github.com/curavoy/curavoy/internal/pkg/database"
	"github.com/curavoy/curavoy/internal/pkg/escrow"
	"github.com/curavoy/curavoy/internal/pkg/gateway"
	"github.com/curavoy/curavoy/internal/pkg/jobqueue"
	"github.com/curavoy/curavoy/internal/pkg/payout"
)

// escrowService builds a fully wired escrow service for one request.
func escrowService() *escrow.Service {
	db := database.GetDB()
	m := jobqueue.GetManager()
	svc := escrow.NewServiceFromDB(db, gateway.NewStripeClientFromEnv(), audit.NewRecorder(db), jobqueue.NewQueueNotifier(m))
	svc.SetArchiver(jobqueue.NewQueueArchiver(m))
	return svc
}

// payoutExecutor builds a fully wired payout executor for one request.
func payoutExecutor() *payout.Executor {
	db := database.GetDB()
	m := jobqueue.GetManager()
	return payout.NewExecutorFromDB(db, gateway.NewStripeClientFromEnv(), audit.NewRecorder(db), jobqueue.NewQueueNotifier(m))
}

// respondError maps service errors onto JSON responses. Unclassified errors
// become opaque 500s so internals never leak to API clients.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(fiber.Map{
			"error":   appErr.Code,
			"message": appErr.Message,
		})
	}
	log.Errorf("unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal_server_error",
		"message": "Something went wrong",
	})
}

// parsePagination reads offset/limit query params with sane bounds.
func parsePagination(c *fiber.Ctx) (offset, limit int) {
	offset, _ = strconv.Atoi(c.Query("offset", "0"))
	limit, _ = strconv.Atoi(c.Query("limit", "25"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	return offset, limit
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
