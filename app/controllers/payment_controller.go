package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/escrow"
	"github.com/curavoy/curavoy/internal/pkg/metrics/counter"
	"github.com/curavoy/curavoy/internal/pkg/usercontext"
)

type depositRequest struct {
	QuotationID *uint  `json:"quotation_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	HoldDays    int    `json:"hold_days"`
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// HandleCreateDeposit initiates an escrow deposit for the authenticated user.
func HandleCreateDeposit(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}

	payment, clientSecret, err := escrowService().InitiateDeposit(c.UserContext(), escrow.DepositInput{
		UserID:      userCtx.UserID,
		IsAdmin:     userCtx.IsAdmin,
		QuotationID: req.QuotationID,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		HoldDays:    req.HoldDays,
	})
	if err != nil {
		return respondError(c, err)
	}

	if cerr := counter.AddDeposit(); cerr != nil {
		log.Warnf("deposit counter increment failed: %v", cerr)
	}

	resp := paymentJSON(payment)
	if clientSecret != "" {
		resp["client_secret"] = clientSecret
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// HandleGetPayment returns one payment. Owners see their own, admins see all.
func HandleGetPayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	payment, err := escrowService().GetPayment(c.UserContext(), c.Params("uuid"))
	if err != nil {
		return respondError(c, err)
	}
	if payment.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "payment not found"})
	}
	return c.JSON(paymentJSON(payment))
}

// HandleListPayments lists payments for the caller, or all when admin.
func HandleListPayments(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	offset, limit := parsePagination(c)

	payments, err := escrowService().ListPayments(c.UserContext(), userCtx.UserID, userCtx.IsAdmin, offset, limit)
	if err != nil {
		return respondError(c, err)
	}

	items := make([]fiber.Map, 0, len(payments))
	for i := range payments {
		items = append(items, paymentJSON(&payments[i]))
	}
	return c.JSON(fiber.Map{"payments": items, "offset": offset, "limit": limit})
}

// HandleCapturePayment settles an authorized hold. Admin only.
func HandleCapturePayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	payment, err := escrowService().Capture(c.UserContext(), userCtx.UserID, c.Params("uuid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(paymentJSON(payment))
}

// HandleReleasePayment releases a held payment and schedules its payout.
// Admin only.
func HandleReleasePayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	payment, scheduledPayout, err := escrowService().Release(c.UserContext(), userCtx.UserID, c.Params("uuid"))
	if err != nil {
		return respondError(c, err)
	}

	resp := paymentJSON(payment)
	if scheduledPayout != nil {
		resp["payout"] = payoutJSON(scheduledPayout)
	}
	return c.JSON(resp)
}

// HandleRefundPayment refunds a held or released payment. Admin only.
func HandleRefundPayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req refundRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}

	payment, err := escrowService().Refund(c.UserContext(), userCtx.UserID, c.Params("uuid"), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(paymentJSON(payment))
}

func paymentJSON(p *models.Payment) fiber.Map {
	return fiber.Map{
		"uuid":                p.UUID,
		"user_id":             p.UserID,
		"quotation_id":        p.QuotationID,
		"amount_minor":        p.AmountMinor,
		"currency":            p.Currency,
		"status":              p.Status,
		"hold_days":           p.HoldDays,
		"escrow_hold_until":   formatTimePtr(p.EscrowHoldUntil),
		"release_eligible_at": formatTimePtr(p.ReleaseEligibleAt),
		"captured_at":         formatTimePtr(p.CapturedAt),
		"released_at":         formatTimePtr(p.ReleasedAt),
		"created_at":          p.CreatedAt.UTC(),
	}
}

func payoutJSON(p *models.Payout) fiber.Map {
	return fiber.Map{
		"uuid":               p.UUID,
		"provider_id":        p.ProviderID,
		"payment_id":         p.PaymentID,
		"amount_minor":       p.AmountMinor,
		"currency":           p.Currency,
		"status":             p.Status,
		"scheduled_at":       p.ScheduledAt.UTC(),
		"paid_at":            formatTimePtr(p.PaidAt),
		"stripe_transfer_id": p.StripeTransferID,
		"last_error":         p.LastError,
	}
}
