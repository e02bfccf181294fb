package escrow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/apperror"
	"github.com/curavoy/curavoy/internal/pkg/gateway"
)

// gatewayTimeout bounds every synchronous gateway call. Timeouts surface as
// gateway errors; outcomes of requests already sent are reconciled later via
// webhooks.
const gatewayTimeout = 15 * time.Second

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Auditor records best-effort audit entries; implementations never return
// errors to the caller.
type Auditor interface {
	Record(actorID *uint, entityType string, entityID uint, action string, metadata map[string]any)
}

// Notifier dispatches user-facing notifications after a transition commits.
type Notifier interface {
	Notify(userID uint, kind, content string, referenceID uint)
}

// Service owns the payment lifecycle: deposits, captures, releases, refunds
// and payout scheduling. All status changes go through preconditioned
// updates so concurrent administrative and webhook-driven transitions cannot
// overwrite each other.
type Service struct {
	repo     Repository
	gw       gateway.Client
	audit    Auditor
	notify   Notifier
	archiver Archiver
	settings *models.AppSettings
}

// NewService creates an escrow service. audit and notify may be nil.
func NewService(repo Repository, gw gateway.Client, audit Auditor, notify Notifier, settings *models.AppSettings) *Service {
	if settings == nil {
		settings = models.GetAppSettings()
	}
	return &Service{repo: repo, gw: gw, audit: audit, notify: notify, settings: settings}
}

// NewServiceFromDB creates an escrow service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gw gateway.Client, audit Auditor, notify Notifier) *Service {
	return NewService(NewRepository(db), gw, audit, notify, nil)
}

// DepositInput describes a deposit-initiation request.
type DepositInput struct {
	UserID      uint
	IsAdmin     bool
	QuotationID *uint
	AmountMinor int64
	Currency    string
	HoldDays    int
}

// InitiateDeposit creates a payment and, when a gateway is configured,
// requests a manual-capture authorization hold. Without a gateway the
// payment is held immediately (ledger-only mode). The returned string is the
// gateway client secret for completing the authorization client-side.
func (s *Service) InitiateDeposit(ctx context.Context, in DepositInput) (*models.Payment, string, error) {
	if in.AmountMinor < models.MinDepositMinor {
		return nil, "", apperror.Validation(fmt.Sprintf("amount must be at least %d minor units", models.MinDepositMinor))
	}
	if in.HoldDays < models.MinHoldDays || in.HoldDays > models.MaxHoldDays {
		return nil, "", apperror.Validation(fmt.Sprintf("hold_days must be between %d and %d", models.MinHoldDays, models.MaxHoldDays))
	}
	if !currencyRe.MatchString(in.Currency) {
		return nil, "", apperror.Validation("currency must be a 3-letter uppercase code")
	}

	if in.QuotationID != nil {
		q, err := s.repo.GetQuotation(*in.QuotationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, "", apperror.NotFound("quotation not found")
			}
			return nil, "", err
		}
		if q.UserID != in.UserID && !in.IsAdmin {
			return nil, "", apperror.ErrForbidden
		}
	}

	gatewayMode := s.gw != nil && s.gw.IsConfigured()
	status := models.PaymentStatusHeld
	if gatewayMode {
		status = models.PaymentStatusInitiated
	}

	payment := models.NewPayment(in.UserID, in.QuotationID, in.AmountMinor, in.Currency, in.HoldDays, status)
	if err := payment.Validate(); err != nil {
		return nil, "", apperror.Validation(err.Error())
	}
	if err := s.repo.CreatePayment(payment); err != nil {
		return nil, "", err
	}

	if !gatewayMode {
		s.record(&in.UserID, payment, "deposit_held", map[string]any{"amount_minor": in.AmountMinor, "currency": in.Currency})
		return payment, "", nil
	}

	gctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	res, err := s.gw.Authorize(gctx, in.AmountMinor, in.Currency, map[string]string{
		gateway.MetadataPaymentKey: payment.UUID,
	})
	if err != nil {
		// The payment stays initiated with no external reference; the caller
		// decides whether to retry.
		log.Errorf("[Escrow] authorization failed for payment %s: %v", payment.UUID, err)
		return payment, "", apperror.Gateway(err)
	}

	if err := s.repo.UpdatePaymentFields(payment.ID, map[string]any{"stripe_intent_id": res.ExternalRef}); err != nil {
		return payment, "", err
	}
	payment.StripeIntentID = res.ExternalRef

	s.record(&in.UserID, payment, "deposit_initiated", map[string]any{"intent_id": res.ExternalRef})
	return payment, res.ClientSecret, nil
}

// Capture settles an authorization hold administratively. Valid only while
// the payment is initiated or authorized and carries a gateway reference.
func (s *Service) Capture(ctx context.Context, actorID uint, paymentUUID string) (*models.Payment, error) {
	payment, err := s.getPayment(paymentUUID)
	if err != nil {
		return nil, err
	}
	if payment.StripeIntentID == "" {
		return nil, apperror.BadState("payment has no gateway authorization to capture")
	}
	if payment.Status != models.PaymentStatusInitiated && payment.Status != models.PaymentStatusAuthorized {
		return nil, apperror.BadState("payment cannot be captured in status " + payment.Status)
	}

	gctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	if _, err := s.gw.Capture(gctx, payment.StripeIntentID); err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return nil, apperror.Config("payment gateway is not configured")
		}
		return nil, apperror.Gateway(err)
	}

	now := time.Now()
	ok, err := s.repo.TransitionPayment(payment.ID,
		[]string{models.PaymentStatusInitiated, models.PaymentStatusAuthorized},
		models.PaymentStatusHeld,
		map[string]any{"captured_at": &now})
	if err != nil {
		return nil, err
	}
	if !ok {
		// A webhook moved the payment first; the capture still happened.
		log.Warnf("[Escrow] capture race on payment %s, state already advanced", payment.UUID)
	}

	payment, err = s.getPayment(paymentUUID)
	if err != nil {
		return nil, err
	}
	s.record(&actorID, payment, "capture", nil)
	return payment, nil
}

// Release moves a held payment to released and schedules the provider
// payout as one transaction: if scheduling fails the release rolls back.
func (s *Service) Release(ctx context.Context, actorID uint, paymentUUID string) (*models.Payment, *models.Payout, error) {
	payment, err := s.getPayment(paymentUUID)
	if err != nil {
		return nil, nil, err
	}
	if payment.Status != models.PaymentStatusHeld {
		return nil, nil, apperror.BadState("only held payments can be released, current status is " + payment.Status)
	}

	var payout *models.Payout
	now := time.Now()
	err = s.repo.Transaction(func(tx Repository) error {
		ok, err := tx.TransitionPayment(payment.ID,
			[]string{models.PaymentStatusHeld},
			models.PaymentStatusReleased,
			map[string]any{"released_at": &now})
		if err != nil {
			return err
		}
		if !ok {
			return apperror.BadState("payment is no longer held")
		}
		payment.Status = models.PaymentStatusReleased
		payment.ReleasedAt = &now

		payout, err = s.schedulePayout(tx, payment)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.record(&actorID, payment, "release", map[string]any{"payout_id": payout.ID})
	if s.notify != nil {
		s.notify.Notify(payment.UserID, models.NotificationTypeRelease,
			"Your escrow deposit has been released to the provider.", payment.ID)
	}
	return payment, payout, nil
}

// SchedulePayout is the idempotent scheduler entry point for a released
// payment: it returns the existing payout unchanged when one exists.
func (s *Service) SchedulePayout(ctx context.Context, paymentUUID string) (*models.Payout, error) {
	payment, err := s.getPayment(paymentUUID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusReleased {
		return nil, apperror.BadState("payouts are scheduled only for released payments")
	}
	return s.schedulePayout(s.repo, payment)
}

func (s *Service) schedulePayout(repo Repository, payment *models.Payment) (*models.Payout, error) {
	if payment.QuotationID == nil {
		return nil, apperror.BadState("payment has no quotation, payout destination unknown")
	}
	q, err := repo.GetQuotation(*payment.QuotationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("quotation not found for payout scheduling")
		}
		return nil, err
	}

	scheduledAt := time.Now().AddDate(0, 0, s.settings.GetPayoutIntervalDays())
	payout := models.NewPayout(q.ProviderID, payment, scheduledAt)

	created, stored, err := repo.CreatePayoutIfNotExists(payout)
	if err != nil {
		return nil, err
	}
	if !created {
		log.Infof("[Escrow] payout already scheduled for payment %s", payment.UUID)
	}
	return stored, nil
}

// Refund returns funds to the payer. When a gateway reference exists the
// gateway refund must succeed before local state moves; a gateway failure
// leaves the payment unchanged.
func (s *Service) Refund(ctx context.Context, actorID uint, paymentUUID, reason string) (*models.Payment, error) {
	payment, err := s.getPayment(paymentUUID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusHeld && payment.Status != models.PaymentStatusReleased {
		return nil, apperror.BadState("only held or released payments can be refunded, current status is " + payment.Status)
	}

	if payment.StripeIntentID != "" {
		gctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
		defer cancel()

		if err := s.gw.Refund(gctx, payment.StripeIntentID, reason); err != nil {
			if errors.Is(err, gateway.ErrNotConfigured) {
				return nil, apperror.Config("payment gateway is not configured")
			}
			return nil, apperror.Gateway(err)
		}
	}

	ok, err := s.repo.TransitionPayment(payment.ID,
		[]string{models.PaymentStatusHeld, models.PaymentStatusReleased},
		models.PaymentStatusRefunded, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.BadState("payment state changed during refund")
	}
	payment.Status = models.PaymentStatusRefunded

	s.record(&actorID, payment, "refund", map[string]any{"reason": reason})
	if s.notify != nil {
		s.notify.Notify(payment.UserID, models.NotificationTypeRefund,
			"Your escrow deposit has been refunded.", payment.ID)
	}
	return payment, nil
}

// GetPayment resolves a payment by its public UUID.
func (s *Service) GetPayment(ctx context.Context, paymentUUID string) (*models.Payment, error) {
	return s.getPayment(paymentUUID)
}

// ListPayments returns a page of payments, newest first. Non-admin callers
// only ever see their own.
func (s *Service) ListPayments(ctx context.Context, userID uint, isAdmin bool, offset, limit int) ([]models.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	if isAdmin {
		return s.repo.ListPayments(offset, limit)
	}
	return s.repo.ListPaymentsByUser(userID, offset, limit)
}

func (s *Service) getPayment(paymentUUID string) (*models.Payment, error) {
	payment, err := s.repo.GetPaymentByUUID(paymentUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("payment not found")
		}
		return nil, err
	}
	return payment, nil
}

func (s *Service) record(actorID *uint, payment *models.Payment, action string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(actorID, "payment", payment.ID, action, metadata)
}
