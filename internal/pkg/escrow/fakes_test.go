package escrow

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/gateway"
)

// memRepo is an in-memory Repository for service tests. Preconditioned
// updates behave like the SQL versions: the status check and the write
// happen under one lock.
type memRepo struct {
	mu         sync.Mutex
	nextID     uint
	payments   map[uint]*models.Payment
	quotations map[uint]*models.Quotation
	providers  map[string]*models.Provider
	events     map[string]*models.WebhookEvent
	eventsByID map[uint]*models.WebhookEvent
	payouts    map[uint]*models.Payout
}

func newMemRepo() *memRepo {
	return &memRepo{
		payments:   map[uint]*models.Payment{},
		quotations: map[uint]*models.Quotation{},
		providers:  map[string]*models.Provider{},
		events:     map[string]*models.WebhookEvent{},
		eventsByID: map[uint]*models.WebhookEvent{},
		payouts:    map[uint]*models.Payout{},
	}
}

func (r *memRepo) addQuotation(q *models.Quotation) *models.Quotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	q.ID = r.nextID
	r.quotations[q.ID] = q
	return q
}

func (r *memRepo) addProvider(p *models.Provider) *models.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	r.providers[p.StripeAccountID] = p
	return p
}

func (r *memRepo) addPayment(p *models.Payment) *models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	r.payments[p.ID] = p
	return p
}

func (r *memRepo) Transaction(fn func(Repository) error) error {
	// No rollback emulation; tests assert on the error path separately.
	return fn(r)
}

func (r *memRepo) CreatePayment(p *models.Payment) error {
	r.addPayment(p)
	return nil
}

func (r *memRepo) GetPaymentByUUID(uuid string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.UUID == uuid {
			clone := *p
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) GetPaymentByIntentID(intentID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.StripeIntentID == intentID && intentID != "" {
			clone := *p
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) UpdatePaymentFields(id uint, updates map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil
	}
	applyPaymentUpdates(p, updates)
	return nil
}

func (r *memRepo) TransitionPayment(id uint, from []string, to string, updates map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, f := range from {
		if p.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	p.Status = to
	applyPaymentUpdates(p, updates)
	return true, nil
}

func applyPaymentUpdates(p *models.Payment, updates map[string]any) {
	for k, v := range updates {
		switch k {
		case "stripe_intent_id":
			p.StripeIntentID = v.(string)
		case "stripe_charge_id":
			p.StripeChargeID = v.(string)
		case "captured_at":
			p.CapturedAt = v.(*time.Time)
		case "released_at":
			p.ReleasedAt = v.(*time.Time)
		}
	}
}

func (r *memRepo) ListPaymentsByUser(userID uint, offset, limit int) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, offset, limit), nil
}

func (r *memRepo) ListPayments(offset, limit int) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, offset, limit), nil
}

func page(in []models.Payment, offset, limit int) []models.Payment {
	if offset >= len(in) {
		return nil
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}

func (r *memRepo) GetQuotation(id uint) (*models.Quotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *q
	return &clone, nil
}

func (r *memRepo) GetProviderByAccountID(accountID string) (*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[accountID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *memRepo) SaveProvider(p *models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *p
	r.providers[p.StripeAccountID] = &clone
	return nil
}

func (r *memRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Source + "/" + event.EventID
	if existing, ok := r.events[key]; ok {
		clone := *existing
		return false, &clone, nil
	}
	r.nextID++
	event.ID = r.nextID
	event.CreatedAt = time.Now()
	r.events[key] = event
	r.eventsByID[event.ID] = event
	clone := *event
	return true, &clone, nil
}

func (r *memRepo) MarkWebhookProcessed(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.eventsByID[id]; ok {
		now := time.Now()
		ev.ProcessedAt = &now
		ev.ProcessingError = ""
		ev.Attempts++
	}
	return nil
}

func (r *memRepo) MarkWebhookFailed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.eventsByID[id]; ok {
		ev.ProcessingError = processingError
		ev.Attempts++
	}
	return nil
}

func (r *memRepo) ListStuckWebhookEvents(olderThan time.Time, maxAttempts, limit int) ([]models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WebhookEvent
	for _, ev := range r.eventsByID {
		if ev.ProcessedAt == nil && ev.CreatedAt.Before(olderThan) && ev.Attempts < maxAttempts {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) CreatePayoutIfNotExists(p *models.Payout) (bool, *models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.payouts[p.PaymentID]; ok {
		clone := *existing
		return false, &clone, nil
	}
	r.nextID++
	p.ID = r.nextID
	r.payouts[p.PaymentID] = p
	clone := *p
	return true, &clone, nil
}

// fakeGateway scripts gateway responses and records calls.
type fakeGateway struct {
	configured bool

	authorizeResult *gateway.AuthorizeResult
	authorizeErr    error
	captureErr      error
	refundErr       error
	transferID      string
	transferErr     error
	parsed          *gateway.WebhookEvent
	parseErr        error

	authorizeCalls int
	captureCalls   int
	refundCalls    int
	transferCalls  int
	lastMetadata   map[string]string
}

func (g *fakeGateway) IsConfigured() bool { return g.configured }

func (g *fakeGateway) Authorize(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*gateway.AuthorizeResult, error) {
	g.authorizeCalls++
	g.lastMetadata = metadata
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	return g.authorizeResult, nil
}

func (g *fakeGateway) Capture(ctx context.Context, externalRef string) (string, error) {
	g.captureCalls++
	if g.captureErr != nil {
		return "", g.captureErr
	}
	return "ch_captured", nil
}

func (g *fakeGateway) Refund(ctx context.Context, externalRef, reason string) error {
	g.refundCalls++
	return g.refundErr
}

func (g *fakeGateway) CreateTransfer(ctx context.Context, amountMinor int64, currency, destination string, metadata map[string]string) (string, error) {
	g.transferCalls++
	if g.transferErr != nil {
		return "", g.transferErr
	}
	return g.transferID, nil
}

func (g *fakeGateway) VerifyAndParseWebhook(payload []byte, signatureHeader string) (*gateway.WebhookEvent, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	return g.parsed, nil
}

type auditEntry struct {
	entityType string
	entityID   uint
	action     string
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAudit) Record(actorID *uint, entityType string, entityID uint, action string, metadata map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{entityType, entityID, action})
}

func (a *fakeAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.action
	}
	return out
}

type notification struct {
	userID uint
	kind   string
}

type fakeNotify struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotify) Notify(userID uint, kind, content string, referenceID uint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{userID, kind})
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []string
}

func (a *fakeArchiver) ArchiveWebhookPayload(eventID string, payload []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, eventID)
}
