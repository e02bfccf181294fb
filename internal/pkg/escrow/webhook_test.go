package escrow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/apperror"
	"github.com/curavoy/curavoy/internal/pkg/gateway"
)

func intentEvent(id, intentID, intentStatus, paymentRef string) *gateway.WebhookEvent {
	return &gateway.WebhookEvent{
		ID:           id,
		Type:         "payment_intent." + intentStatus,
		Kind:         gateway.KindIntentUpdated,
		IntentID:     intentID,
		IntentStatus: intentStatus,
		PaymentRef:   paymentRef,
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	gw := &fakeGateway{configured: true, parseErr: errors.New("signature mismatch")}
	svc := NewService(repo, gw, nil, nil, testSettings())

	_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=bad")
	assert.True(t, apperror.IsCode(err, "VALIDATION_FAILED"))
	// Nothing may be stored for an unverified payload.
	assert.Empty(t, repo.events)
}

func TestHandleWebhookRequiresGateway(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemRepo(), &fakeGateway{configured: false}, nil, nil, testSettings())
	_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.True(t, apperror.IsCode(err, "NOT_CONFIGURED"))
}

func TestHandleWebhookDuplicateDelivery(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	p := repo.addPayment(&models.Payment{
		UUID: "pay-1", UserID: 7, AmountMinor: 100, Currency: "EUR",
		Status: models.PaymentStatusInitiated, StripeIntentID: "pi_123",
	})
	gw := &fakeGateway{configured: true, parsed: intentEvent("evt_1", "pi_123", "succeeded", "pay-1")}
	archiver := &fakeArchiver{}
	svc := NewService(repo, gw, nil, nil, testSettings())
	svc.SetArchiver(archiver)

	first, err := svc.HandleWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "sig")
	assert.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, models.PaymentStatusHeld, repo.payments[p.ID].Status)
	assert.NotNil(t, repo.payments[p.ID].CapturedAt)

	// Reset state to prove the second delivery applies nothing.
	repo.payments[p.ID].Status = models.PaymentStatusInitiated
	repo.payments[p.ID].CapturedAt = nil

	second, err := svc.HandleWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "sig")
	assert.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, "evt_1", second.EventID)
	assert.Equal(t, models.PaymentStatusInitiated, repo.payments[p.ID].Status)

	// Archival happens once, on the first accepted delivery.
	assert.Equal(t, []string{"evt_1"}, archiver.archived)
}

func TestHandleWebhookIntentTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		fromStatus   string
		intentStatus string
		wantStatus   string
	}{
		{"succeeded holds initiated", models.PaymentStatusInitiated, "succeeded", models.PaymentStatusHeld},
		{"succeeded holds authorized", models.PaymentStatusAuthorized, "succeeded", models.PaymentStatusHeld},
		{"capturable authorizes", models.PaymentStatusInitiated, "requires_capture", models.PaymentStatusAuthorized},
		{"processing is a no-op", models.PaymentStatusInitiated, "processing", models.PaymentStatusInitiated},
		{"succeeded cannot regress released", models.PaymentStatusReleased, "succeeded", models.PaymentStatusReleased},
		{"unmapped status ignored", models.PaymentStatusInitiated, "requires_action", models.PaymentStatusInitiated},
	}

	for i, tt := range tests {
		tt := tt
		eventID := fmt.Sprintf("evt_%d", i)
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			p := repo.addPayment(&models.Payment{
				UUID: "pay-1", UserID: 7, AmountMinor: 100, Currency: "EUR",
				Status: tt.fromStatus, StripeIntentID: "pi_123",
			})
			gw := &fakeGateway{configured: true, parsed: intentEvent(eventID, "pi_123", tt.intentStatus, "pay-1")}
			svc := NewService(repo, gw, nil, nil, testSettings())

			res, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
			assert.NoError(t, err)
			assert.False(t, res.Duplicate)
			assert.Equal(t, tt.wantStatus, repo.payments[p.ID].Status)

			stored := repo.events[WebhookSource+"/"+eventID]
			assert.NotNil(t, stored.ProcessedAt)
		})
	}
}

func TestHandleWebhookPaymentFailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		fromStatus string
		wantStatus string
	}{
		{"fails initiated", models.PaymentStatusInitiated, models.PaymentStatusFailed},
		{"fails authorized", models.PaymentStatusAuthorized, models.PaymentStatusFailed},
		{"cannot fail held funds", models.PaymentStatusHeld, models.PaymentStatusHeld},
		{"cannot fail released funds", models.PaymentStatusReleased, models.PaymentStatusReleased},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			p := repo.addPayment(&models.Payment{
				UUID: "pay-1", UserID: 7, AmountMinor: 100, Currency: "EUR",
				Status: tt.fromStatus, StripeIntentID: "pi_123",
			})
			ev := intentEvent("evt_f", "pi_123", "requires_payment_method", "pay-1")
			ev.Failed = true
			ev.FailureMessage = "card declined"
			gw := &fakeGateway{configured: true, parsed: ev}
			svc := NewService(repo, gw, nil, nil, testSettings())

			_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, repo.payments[p.ID].Status)
		})
	}
}

func TestHandleWebhookChargeSucceeded(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	p := repo.addPayment(&models.Payment{
		UUID: "pay-1", UserID: 7, AmountMinor: 100, Currency: "EUR",
		Status: models.PaymentStatusHeld, StripeIntentID: "pi_123",
	})
	gw := &fakeGateway{configured: true, parsed: &gateway.WebhookEvent{
		ID:       "evt_c",
		Type:     "charge.succeeded",
		Kind:     gateway.KindChargeSucceeded,
		ChargeID: "ch_456",
		IntentID: "pi_123",
	}}
	svc := NewService(repo, gw, nil, nil, testSettings())

	_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.NoError(t, err)
	assert.Equal(t, "ch_456", repo.payments[p.ID].StripeChargeID)
	// Charge bookkeeping never changes lifecycle state.
	assert.Equal(t, models.PaymentStatusHeld, repo.payments[p.ID].Status)
}

func TestHandleWebhookChargeRefunded(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	p := repo.addPayment(&models.Payment{
		UUID: "pay-1", UserID: 7, AmountMinor: 100, Currency: "EUR",
		Status: models.PaymentStatusHeld, StripeIntentID: "pi_123",
	})
	gw := &fakeGateway{configured: true, parsed: &gateway.WebhookEvent{
		ID:       "evt_r",
		Type:     "charge.refunded",
		Kind:     gateway.KindChargeRefunded,
		ChargeID: "ch_456",
		IntentID: "pi_123",
	}}
	svc := NewService(repo, gw, nil, nil, testSettings())

	_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, repo.payments[p.ID].Status)
}

func TestHandleWebhookAccountUpdated(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.addProvider(&models.Provider{
		Name: "Clinic", Email: "clinic@example.com",
		StripeAccountID: "acct_1",
	})
	accountEvent := func(id string, details bool) *gateway.WebhookEvent {
		return &gateway.WebhookEvent{
			ID:               id,
			Type:             "account.updated",
			Kind:             gateway.KindAccountUpdated,
			AccountID:        "acct_1",
			ChargesEnabled:   true,
			PayoutsEnabled:   true,
			DetailsSubmitted: details,
		}
	}
	gw := &fakeGateway{configured: true, parsed: accountEvent("evt_a1", true)}
	svc := NewService(repo, gw, nil, nil, testSettings())

	_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.NoError(t, err)

	provider, err := repo.GetProviderByAccountID("acct_1")
	assert.NoError(t, err)
	assert.True(t, provider.ChargesEnabled)
	assert.True(t, provider.PayoutsEnabled)
	assert.True(t, provider.DetailsSubmitted)
	assert.NotNil(t, provider.OnboardedAt)
	onboardedAt := *provider.OnboardedAt

	// A later account event must not move the onboarding timestamp.
	gw.parsed = accountEvent("evt_a2", true)
	_, err = svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.NoError(t, err)
	provider, _ = repo.GetProviderByAccountID("acct_1")
	assert.Equal(t, onboardedAt, *provider.OnboardedAt)
}

func TestHandleWebhookUnknownEntitiesSkipped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   *gateway.WebhookEvent
	}{
		{"unknown payment", intentEvent("evt_u1", "pi_other", "succeeded", "")},
		{"unknown event type", &gateway.WebhookEvent{ID: "evt_u2", Type: "invoice.created", Kind: gateway.KindUnknown}},
		{"unknown account", &gateway.WebhookEvent{ID: "evt_u3", Type: "account.updated", Kind: gateway.KindAccountUpdated, AccountID: "acct_other"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			gw := &fakeGateway{configured: true, parsed: tt.ev}
			svc := NewService(repo, gw, nil, nil, testSettings())

			res, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
			// Skips are success: the gateway must not keep retrying.
			assert.NoError(t, err)
			assert.False(t, res.Duplicate)
			stored := repo.events[WebhookSource+"/"+tt.ev.ID]
			assert.NotNil(t, stored.ProcessedAt)
		})
	}
}

func TestReprocessStuckEvents(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	p := repo.addPayment(&models.Payment{
		UUID: "pay-1", UserID: 7, AmountMinor: 100, Currency: "EUR",
		Status: models.PaymentStatusInitiated, StripeIntentID: "pi_123",
	})

	payload := fmt.Sprintf(`{
		"id": "evt_stuck",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_123",
			"status": "succeeded",
			"metadata": {"payment_uuid": %q}
		}}
	}`, p.UUID)

	created, stored, err := repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Source:      WebhookSource,
		EventID:     "evt_stuck",
		EventType:   "payment_intent.succeeded",
		PayloadJSON: payload,
	})
	assert.NoError(t, err)
	assert.True(t, created)
	repo.eventsByID[stored.ID].CreatedAt = time.Now().Add(-time.Hour)

	svc := NewService(repo, &fakeGateway{configured: true}, nil, nil, testSettings())

	processed, err := svc.ReprocessStuckEvents(context.Background(), 15*time.Minute, 5, 100)
	assert.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, models.PaymentStatusHeld, repo.payments[p.ID].Status)
	assert.NotNil(t, repo.eventsByID[stored.ID].ProcessedAt)

	// A second sweep finds nothing left.
	processed, err = svc.ReprocessStuckEvents(context.Background(), 15*time.Minute, 5, 100)
	assert.NoError(t, err)
	assert.Zero(t, processed)
}

func TestReprocessStuckEventsSkipsYoungAndExhausted(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()

	_, _, err := repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Source: WebhookSource, EventID: "evt_young", EventType: "charge.succeeded",
		PayloadJSON: `{"id":"evt_young","type":"charge.succeeded","data":{"object":{"id":"ch_1"}}}`,
	})
	assert.NoError(t, err)

	_, exhausted, err := repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Source: WebhookSource, EventID: "evt_exhausted", EventType: "charge.succeeded",
		PayloadJSON: `not json`,
	})
	assert.NoError(t, err)
	repo.eventsByID[exhausted.ID].CreatedAt = time.Now().Add(-time.Hour)
	repo.eventsByID[exhausted.ID].Attempts = 5

	svc := NewService(repo, &fakeGateway{configured: true}, nil, nil, testSettings())
	processed, err := svc.ReprocessStuckEvents(context.Background(), 15*time.Minute, 5, 100)
	assert.NoError(t, err)
	assert.Zero(t, processed)
}
