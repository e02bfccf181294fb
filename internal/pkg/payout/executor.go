package payout

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/gateway"
)

const gatewayTimeout = 15 * time.Second

// Failure reasons distinguish a disabled feature from an incomplete provider
// onboarding so operators can tell configuration gaps apart at a glance.
const (
	ReasonDisabled      = "payouts feature disabled"
	ReasonNotConfigured = "payment gateway not configured"
	ReasonNotOnboarded  = "provider not onboarded for payouts"
)

// Auditor records best-effort audit entries.
type Auditor interface {
	Record(actorID *uint, entityType string, entityID uint, action string, metadata map[string]any)
}

// Notifier reports payout failures for operator follow-up.
type Notifier interface {
	NotifyPayoutFailed(payout *models.Payout, reason string)
}

// Result is one entry of a batch run.
type Result struct {
	PayoutID    uint   `json:"payout_id"`
	UUID        string `json:"uuid"`
	Status      string `json:"status"`
	ExternalRef string `json:"external_ref,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Executor runs due payouts in bounded batches. It never invents a
// transfer: when the feature is disabled or the provider has no usable
// payout destination the payout fails with a diagnostic reason instead.
// Safe under overlapping invocations because every settlement re-verifies
// the pending status.
type Executor struct {
	repo     Repository
	gw       gateway.Client
	audit    Auditor
	notify   Notifier
	settings *models.AppSettings
}

// NewExecutor creates a payout executor. audit and notify may be nil.
func NewExecutor(repo Repository, gw gateway.Client, audit Auditor, notify Notifier, settings *models.AppSettings) *Executor {
	if settings == nil {
		settings = models.GetAppSettings()
	}
	return &Executor{repo: repo, gw: gw, audit: audit, notify: notify, settings: settings}
}

// NewExecutorFromDB creates a payout executor from a GORM DB handle.
func NewExecutorFromDB(db *gorm.DB, gw gateway.Client, audit Auditor, notify Notifier) *Executor {
	return NewExecutor(NewRepository(db), gw, audit, notify, nil)
}

// RunDue executes all pending payouts whose scheduled time has passed,
// oldest first, up to limit.
func (e *Executor) RunDue(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}

	due, err := e.repo.ListDue(time.Now(), limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(due))
	for i := range due {
		results = append(results, e.execute(ctx, &due[i]))
	}
	return results, nil
}

func (e *Executor) execute(ctx context.Context, p *models.Payout) Result {
	if reason := e.blockedReason(p); reason != "" {
		return e.fail(p, reason)
	}

	provider, err := e.repo.GetProvider(p.ProviderID)
	if err != nil {
		return e.fail(p, "provider lookup failed: "+err.Error())
	}
	if !provider.CanReceivePayouts() {
		return e.fail(p, ReasonNotOnboarded)
	}

	gctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	transferID, err := e.gw.CreateTransfer(gctx, p.AmountMinor, p.Currency, provider.StripeAccountID, map[string]string{
		"payout_uuid": p.UUID,
	})
	if err != nil {
		return e.fail(p, err.Error())
	}

	ok, err := e.repo.MarkPaid(p.ID, transferID)
	if err != nil {
		log.Errorf("[Payout] failed to persist paid state for payout %s: %v", p.UUID, err)
		return Result{PayoutID: p.ID, UUID: p.UUID, Status: p.Status, Error: err.Error()}
	}
	if !ok {
		// Another run settled it between selection and update.
		log.Warnf("[Payout] payout %s was no longer pending, skipping", p.UUID)
		return Result{PayoutID: p.ID, UUID: p.UUID, Status: "skipped"}
	}

	if e.audit != nil {
		e.audit.Record(nil, "payout", p.ID, "payout_paid", map[string]any{"transfer_id": transferID})
	}
	log.Infof("[Payout] payout %s paid, transfer %s", p.UUID, transferID)
	return Result{PayoutID: p.ID, UUID: p.UUID, Status: models.PayoutStatusPaid, ExternalRef: transferID}
}

// blockedReason returns a non-empty diagnostic when execution must not even
// attempt a transfer.
func (e *Executor) blockedReason(p *models.Payout) string {
	if !e.settings.IsPayoutsEnabled() {
		return ReasonDisabled
	}
	if e.gw == nil || !e.gw.IsConfigured() {
		return ReasonNotConfigured
	}
	return ""
}

func (e *Executor) fail(p *models.Payout, reason string) Result {
	ok, err := e.repo.MarkFailed(p.ID, reason)
	if err != nil {
		log.Errorf("[Payout] failed to persist failure for payout %s: %v", p.UUID, err)
		return Result{PayoutID: p.ID, UUID: p.UUID, Status: p.Status, Error: reason}
	}
	if !ok {
		return Result{PayoutID: p.ID, UUID: p.UUID, Status: "skipped"}
	}

	if e.audit != nil {
		e.audit.Record(nil, "payout", p.ID, "payout_failed", map[string]any{"reason": reason})
	}
	if e.notify != nil {
		e.notify.NotifyPayoutFailed(p, reason)
	}
	log.Warnf("[Payout] payout %s failed: %s", p.UUID, reason)
	return Result{PayoutID: p.ID, UUID: p.UUID, Status: models.PayoutStatusFailed, Error: reason}
}
