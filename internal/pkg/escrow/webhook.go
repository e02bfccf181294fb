package escrow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/apperror"
	"github.com/curavoy/curavoy/internal/pkg/gateway"
)

// WebhookSource names the gateway in WebhookEvent rows.
const WebhookSource = "stripe"

// WebhookResult reports the outcome of one webhook delivery.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
}

// Archiver receives accepted raw payloads for best-effort offsite archival.
type Archiver interface {
	ArchiveWebhookPayload(eventID string, payload []byte)
}

// SetArchiver attaches an optional payload archiver to the service.
func (s *Service) SetArchiver(a Archiver) {
	s.archiver = a
}

// HandleWebhook verifies, deduplicates and applies one gateway delivery.
//
// Order is load-bearing: signature verification runs over the raw payload
// before anything is stored; the unique insert of the event row happens
// before any business logic so that two concurrent deliveries of the same
// event id collapse into one application; the processed timestamp is set
// only after the dispatch completed. An event recorded but not processed is
// picked up again by ReprocessStuckEvents.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	if s.gw == nil || !s.gw.IsConfigured() {
		return nil, apperror.Config("payment gateway is not configured for webhooks")
	}

	ev, err := s.gw.VerifyAndParseWebhook(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return nil, apperror.Config("webhook secret is not configured")
		}
		return nil, apperror.Validation("webhook signature verification failed: " + err.Error())
	}

	sum := sha256.Sum256(payload)
	record := &models.WebhookEvent{
		Source:        WebhookSource,
		EventID:       ev.ID,
		EventType:     ev.Type,
		LiveMode:      ev.LiveMode,
		PayloadJSON:   string(payload),
		PayloadSHA256: hex.EncodeToString(sum[:]),
	}

	created, stored, err := s.repo.CreateWebhookEventIfNotExists(record)
	if err != nil {
		return nil, err
	}
	if !created {
		log.Infof("[Webhook] duplicate delivery of event %s absorbed", ev.ID)
		return &WebhookResult{EventID: ev.ID, EventType: ev.Type, Duplicate: true}, nil
	}

	if s.archiver != nil {
		s.archiver.ArchiveWebhookPayload(ev.ID, payload)
	}

	if err := s.applyEvent(ctx, ev); err != nil {
		if markErr := s.repo.MarkWebhookFailed(stored.ID, err.Error()); markErr != nil {
			log.Errorf("[Webhook] failed to record processing error for event %s: %v", ev.ID, markErr)
		}
		return nil, err
	}

	if err := s.repo.MarkWebhookProcessed(stored.ID); err != nil {
		return nil, err
	}
	return &WebhookResult{EventID: ev.ID, EventType: ev.Type, Duplicate: false}, nil
}

// ReprocessStuckEvents re-dispatches events that were recorded but never
// marked processed, e.g. because a handler crashed mid-flight. Gateway
// retries of the same event id are absorbed as duplicates at the gate, so
// this sweep is the only path that completes them. Returns the number of
// events that finished processing.
func (s *Service) ReprocessStuckEvents(ctx context.Context, minAge time.Duration, maxAttempts, limit int) (int, error) {
	cutoff := time.Now().Add(-minAge)
	events, err := s.repo.ListStuckWebhookEvents(cutoff, maxAttempts, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range events {
		event := &events[i]
		ev, err := gateway.ParseEvent([]byte(event.PayloadJSON))
		if err != nil {
			log.Errorf("[Webhook] stuck event %s has undecodable payload: %v", event.EventID, err)
			if markErr := s.repo.MarkWebhookFailed(event.ID, err.Error()); markErr != nil {
				log.Errorf("[Webhook] failed to mark stuck event %s: %v", event.EventID, markErr)
			}
			continue
		}

		if err := s.applyEvent(ctx, ev); err != nil {
			log.Warnf("[Webhook] reprocess of event %s failed: %v", event.EventID, err)
			if markErr := s.repo.MarkWebhookFailed(event.ID, err.Error()); markErr != nil {
				log.Errorf("[Webhook] failed to mark stuck event %s: %v", event.EventID, markErr)
			}
			continue
		}
		if err := s.repo.MarkWebhookProcessed(event.ID); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// applyEvent dispatches one normalized event against local state. Events
// referencing entities this system cannot see are skipped, not failed.
func (s *Service) applyEvent(ctx context.Context, ev *gateway.WebhookEvent) error {
	switch ev.Kind {
	case gateway.KindIntentUpdated:
		return s.applyIntentUpdate(ev)
	case gateway.KindChargeSucceeded:
		return s.applyChargeSucceeded(ev)
	case gateway.KindChargeRefunded:
		return s.applyChargeRefunded(ev)
	case gateway.KindAccountUpdated:
		return s.applyAccountUpdate(ev)
	default:
		log.Infof("[Webhook] ignoring event type %s", ev.Type)
		return nil
	}
}

func (s *Service) applyIntentUpdate(ev *gateway.WebhookEvent) error {
	payment, err := s.findPaymentForEvent(ev)
	if err != nil || payment == nil {
		return err
	}

	if ev.Failed {
		ok, err := s.repo.TransitionPayment(payment.ID,
			[]string{models.PaymentStatusInitiated, models.PaymentStatusAuthorized},
			models.PaymentStatusFailed, nil)
		if err != nil {
			return err
		}
		if ok && s.audit != nil {
			s.audit.Record(nil, "payment", payment.ID, "gateway_failed", map[string]any{
				"event_id": ev.ID, "message": ev.FailureMessage,
			})
		}
		return nil
	}

	target, known := MapIntentStatus(ev.IntentStatus)
	if !known {
		log.Infof("[Webhook] unmapped intent status %q on event %s", ev.IntentStatus, ev.ID)
		return nil
	}

	switch target {
	case models.PaymentStatusHeld:
		now := time.Now()
		ok, err := s.repo.TransitionPayment(payment.ID,
			[]string{models.PaymentStatusInitiated, models.PaymentStatusAuthorized},
			models.PaymentStatusHeld,
			map[string]any{"captured_at": &now})
		if err != nil {
			return err
		}
		if ok && s.audit != nil {
			s.audit.Record(nil, "payment", payment.ID, "gateway_held", map[string]any{"event_id": ev.ID})
		}
	case models.PaymentStatusAuthorized:
		if _, err := s.repo.TransitionPayment(payment.ID,
			[]string{models.PaymentStatusInitiated},
			models.PaymentStatusAuthorized, nil); err != nil {
			return err
		}
	case models.PaymentStatusInitiated:
		// Already at least initiated; nothing to advance.
	}
	return nil
}

func (s *Service) applyChargeSucceeded(ev *gateway.WebhookEvent) error {
	payment, err := s.findPaymentForEvent(ev)
	if err != nil || payment == nil {
		return err
	}
	// Record the external charge reference only; no status change.
	return s.repo.UpdatePaymentFields(payment.ID, map[string]any{"stripe_charge_id": ev.ChargeID})
}

func (s *Service) applyChargeRefunded(ev *gateway.WebhookEvent) error {
	payment, err := s.findPaymentForEvent(ev)
	if err != nil || payment == nil {
		return err
	}
	ok, err := s.repo.TransitionPayment(payment.ID,
		[]string{models.PaymentStatusHeld, models.PaymentStatusReleased},
		models.PaymentStatusRefunded, nil)
	if err != nil {
		return err
	}
	if ok && s.audit != nil {
		s.audit.Record(nil, "payment", payment.ID, "gateway_refunded", map[string]any{"event_id": ev.ID})
	}
	return nil
}

func (s *Service) applyAccountUpdate(ev *gateway.WebhookEvent) error {
	provider, err := s.repo.GetProviderByAccountID(ev.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Infof("[Webhook] account %s does not match a provider, skipping", ev.AccountID)
			return nil
		}
		return err
	}

	provider.ChargesEnabled = ev.ChargesEnabled
	provider.PayoutsEnabled = ev.PayoutsEnabled
	wasSubmitted := provider.DetailsSubmitted
	provider.DetailsSubmitted = ev.DetailsSubmitted
	if ev.DetailsSubmitted && !wasSubmitted && provider.OnboardedAt == nil {
		now := time.Now()
		provider.OnboardedAt = &now
	}
	return s.repo.SaveProvider(provider)
}

// findPaymentForEvent resolves the payment referenced by an event, first via
// the metadata UUID stamped at creation time, then via the intent id. A nil
// payment with nil error means the event is not for us.
func (s *Service) findPaymentForEvent(ev *gateway.WebhookEvent) (*models.Payment, error) {
	if ev.PaymentRef != "" {
		payment, err := s.repo.GetPaymentByUUID(ev.PaymentRef)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if ev.IntentID != "" {
		payment, err := s.repo.GetPaymentByIntentID(ev.IntentID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	log.Infof("[Webhook] event %s references no known payment, skipping", ev.ID)
	return nil, nil
}
