package payout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/gateway"
)

type memRepo struct {
	mu        sync.Mutex
	nextID    uint
	payouts   map[uint]*models.Payout
	providers map[uint]*models.Provider

	settleRace bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		payouts:   map[uint]*models.Payout{},
		providers: map[uint]*models.Provider{},
	}
}

func (r *memRepo) addProvider(p *models.Provider) *models.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	r.providers[p.ID] = p
	return p
}

func (r *memRepo) addPayout(p *models.Payout) *models.Payout {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	r.payouts[p.ID] = p
	return p
}

func (r *memRepo) ListDue(now time.Time, limit int) ([]models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payout
	for _, p := range r.payouts {
		if p.Status == models.PayoutStatusPending && !p.ScheduledAt.After(now) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) GetProvider(id uint) (*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *memRepo) MarkPaid(id uint, transferID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok || p.Status != models.PayoutStatusPending || r.settleRace {
		return false, nil
	}
	now := time.Now()
	p.Status = models.PayoutStatusPaid
	p.PaidAt = &now
	p.StripeTransferID = transferID
	p.LastError = ""
	return true, nil
}

func (r *memRepo) MarkFailed(id uint, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok || p.Status != models.PayoutStatusPending {
		return false, nil
	}
	p.Status = models.PayoutStatusFailed
	p.LastError = reason
	return true, nil
}

func (r *memRepo) ListByProvider(providerID uint, offset, limit int) ([]models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payout
	for _, p := range r.payouts {
		if p.ProviderID == providerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memRepo) List(offset, limit int) ([]models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payout
	for _, p := range r.payouts {
		out = append(out, *p)
	}
	return out, nil
}

type fakeGateway struct {
	configured  bool
	transferID  string
	transferErr error

	transferCalls int
}

func (g *fakeGateway) IsConfigured() bool { return g.configured }

func (g *fakeGateway) Authorize(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*gateway.AuthorizeResult, error) {
	return nil, gateway.ErrNotConfigured
}

func (g *fakeGateway) Capture(ctx context.Context, externalRef string) (string, error) {
	return "", gateway.ErrNotConfigured
}

func (g *fakeGateway) Refund(ctx context.Context, externalRef, reason string) error {
	return gateway.ErrNotConfigured
}

func (g *fakeGateway) CreateTransfer(ctx context.Context, amountMinor int64, currency, destination string, metadata map[string]string) (string, error) {
	g.transferCalls++
	if g.transferErr != nil {
		return "", g.transferErr
	}
	return g.transferID, nil
}

func (g *fakeGateway) VerifyAndParseWebhook(payload []byte, signatureHeader string) (*gateway.WebhookEvent, error) {
	return nil, gateway.ErrNotConfigured
}

type failedNotice struct {
	payoutID uint
	reason   string
}

type fakeNotify struct {
	mu      sync.Mutex
	notices []failedNotice
}

func (n *fakeNotify) NotifyPayoutFailed(payout *models.Payout, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, failedNotice{payout.ID, reason})
}

func enabledSettings() *models.AppSettings {
	return &models.AppSettings{SiteTitle: "Curavoy", PayoutsEnabled: true, PayoutIntervalDays: 3}
}

func duePayout(repo *memRepo, providerID uint) *models.Payout {
	return repo.addPayout(&models.Payout{
		UUID:        "po-1",
		ProviderID:  providerID,
		PaymentID:   100,
		AmountMinor: 150000,
		Currency:    "EUR",
		Status:      models.PayoutStatusPending,
		ScheduledAt: time.Now().Add(-time.Hour),
	})
}

func onboardedProvider(repo *memRepo) *models.Provider {
	return repo.addProvider(&models.Provider{
		Name: "Clinic", Email: "clinic@example.com",
		StripeAccountID: "acct_1",
		PayoutsEnabled:  true,
	})
}

func TestRunDueSuccess(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	provider := onboardedProvider(repo)
	p := duePayout(repo, provider.ID)
	gw := &fakeGateway{configured: true, transferID: "tr_123"}
	exec := NewExecutor(repo, gw, nil, nil, enabledSettings())

	results, err := exec.RunDue(context.Background(), 50)
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, models.PayoutStatusPaid, results[0].Status)
	assert.Equal(t, "tr_123", results[0].ExternalRef)

	stored := repo.payouts[p.ID]
	assert.Equal(t, models.PayoutStatusPaid, stored.Status)
	assert.Equal(t, "tr_123", stored.StripeTransferID)
	assert.NotNil(t, stored.PaidAt)
	assert.Empty(t, stored.LastError)
}

func TestRunDueSkipsNotDue(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	provider := onboardedProvider(repo)
	repo.addPayout(&models.Payout{
		UUID: "po-future", ProviderID: provider.ID, PaymentID: 100,
		AmountMinor: 100, Currency: "EUR",
		Status:      models.PayoutStatusPending,
		ScheduledAt: time.Now().Add(48 * time.Hour),
	})
	gw := &fakeGateway{configured: true, transferID: "tr_123"}
	exec := NewExecutor(repo, gw, nil, nil, enabledSettings())

	results, err := exec.RunDue(context.Background(), 50)
	assert.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, gw.transferCalls)
}

func TestRunDueFailureReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		enabled    bool
		configured bool
		onboarded  bool
		wantReason string
	}{
		{"feature disabled", false, true, true, ReasonDisabled},
		{"gateway not configured", true, false, true, ReasonNotConfigured},
		{"provider not onboarded", true, true, false, ReasonNotOnboarded},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			provider := repo.addProvider(&models.Provider{
				Name: "Clinic", Email: "clinic@example.com",
				StripeAccountID: "acct_1",
				PayoutsEnabled:  tt.onboarded,
			})
			p := duePayout(repo, provider.ID)
			settings := enabledSettings()
			settings.SetPayoutsEnabled(tt.enabled)
			gw := &fakeGateway{configured: tt.configured, transferID: "tr_123"}
			notify := &fakeNotify{}
			exec := NewExecutor(repo, gw, nil, notify, settings)

			results, err := exec.RunDue(context.Background(), 50)
			assert.NoError(t, err)
			assert.Len(t, results, 1)
			assert.Equal(t, models.PayoutStatusFailed, results[0].Status)
			assert.Equal(t, tt.wantReason, results[0].Error)
			assert.Zero(t, gw.transferCalls)

			stored := repo.payouts[p.ID]
			assert.Equal(t, models.PayoutStatusFailed, stored.Status)
			assert.Equal(t, tt.wantReason, stored.LastError)

			assert.Len(t, notify.notices, 1)
			assert.Equal(t, tt.wantReason, notify.notices[0].reason)
		})
	}
}

func TestRunDueProviderWithoutAccount(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	provider := repo.addProvider(&models.Provider{
		Name: "Clinic", Email: "clinic@example.com",
		PayoutsEnabled: true,
	})
	duePayout(repo, provider.ID)
	gw := &fakeGateway{configured: true}
	exec := NewExecutor(repo, gw, nil, nil, enabledSettings())

	results, err := exec.RunDue(context.Background(), 50)
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, models.PayoutStatusFailed, results[0].Status)
	assert.Equal(t, ReasonNotOnboarded, results[0].Error)
	assert.Zero(t, gw.transferCalls)
}

func TestRunDueTransferFailure(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	provider := onboardedProvider(repo)
	p := duePayout(repo, provider.ID)
	gw := &fakeGateway{configured: true, transferErr: errors.New("insufficient platform balance")}
	exec := NewExecutor(repo, gw, nil, nil, enabledSettings())

	results, err := exec.RunDue(context.Background(), 50)
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, models.PayoutStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "insufficient platform balance")
	assert.Equal(t, models.PayoutStatusFailed, repo.payouts[p.ID].Status)
}

func TestRunDueSettleRaceSkips(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	provider := onboardedProvider(repo)
	duePayout(repo, provider.ID)
	repo.settleRace = true
	gw := &fakeGateway{configured: true, transferID: "tr_123"}
	exec := NewExecutor(repo, gw, nil, nil, enabledSettings())

	results, err := exec.RunDue(context.Background(), 50)
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "skipped", results[0].Status)
}

func TestRunDueLimit(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	provider := onboardedProvider(repo)
	for i := 0; i < 5; i++ {
		repo.addPayout(&models.Payout{
			UUID: "po", ProviderID: provider.ID, PaymentID: uint(100 + i),
			AmountMinor: 100, Currency: "EUR",
			Status:      models.PayoutStatusPending,
			ScheduledAt: time.Now().Add(-time.Duration(i+1) * time.Hour),
		})
	}
	gw := &fakeGateway{configured: true, transferID: "tr_123"}
	exec := NewExecutor(repo, gw, nil, nil, enabledSettings())

	results, err := exec.RunDue(context.Background(), 2)
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, gw.transferCalls)
}
