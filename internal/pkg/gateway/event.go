package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v80"
)

// EventKind is the closed set of webhook event shapes the engine reacts to.
// Anything else normalizes to KindUnknown and is treated as a no-op.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindIntentUpdated
	KindChargeSucceeded
	KindChargeRefunded
	KindAccountUpdated
)

// MetadataPaymentKey is the metadata key the engine stamps on every intent,
// charge and transfer so webhooks can be routed back to the local ledger.
const MetadataPaymentKey = "payment_uuid"

// WebhookEvent is a verified, normalized gateway notification.
type WebhookEvent struct {
	ID       string
	Type     string
	LiveMode bool
	Raw      []byte
	Kind     EventKind

	// KindIntentUpdated
	IntentID       string
	IntentStatus   string
	Failed         bool
	FailureMessage string

	// KindChargeSucceeded / KindChargeRefunded
	ChargeID string

	// KindAccountUpdated
	AccountID        string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool

	// Local payment UUID stamped into gateway metadata at creation time.
	// Empty when the event concerns an entity outside this system.
	PaymentRef string
}

// ParseEvent re-normalizes a stored raw payload whose signature was already
// verified at intake. Used by the stuck-event reconciliation sweep.
func ParseEvent(raw []byte) (*WebhookEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("decode stored event: %w", err)
	}
	return normalizeEvent(event, raw)
}

// normalizeEvent flattens a verified stripe event into the closed union.
func normalizeEvent(event stripe.Event, raw []byte) (*WebhookEvent, error) {
	out := &WebhookEvent{
		ID:       event.ID,
		Type:     string(event.Type),
		LiveMode: event.Livemode,
		Raw:      raw,
		Kind:     KindUnknown,
	}

	switch event.Type {
	case "payment_intent.succeeded",
		"payment_intent.amount_capturable_updated",
		"payment_intent.processing",
		"payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment_intent event %s: %w", event.ID, err)
		}
		out.Kind = KindIntentUpdated
		out.IntentID = pi.ID
		out.IntentStatus = string(pi.Status)
		out.PaymentRef = pi.Metadata[MetadataPaymentKey]
		if event.Type == "payment_intent.payment_failed" {
			out.Failed = true
			if pi.LastPaymentError != nil {
				out.FailureMessage = pi.LastPaymentError.Msg
			}
		}

	case "charge.succeeded", "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge event %s: %w", event.ID, err)
		}
		if event.Type == "charge.succeeded" {
			out.Kind = KindChargeSucceeded
		} else {
			out.Kind = KindChargeRefunded
		}
		out.ChargeID = ch.ID
		if ch.PaymentIntent != nil {
			out.IntentID = ch.PaymentIntent.ID
		}
		out.PaymentRef = ch.Metadata[MetadataPaymentKey]

	case "account.updated":
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("decode account event %s: %w", event.ID, err)
		}
		out.Kind = KindAccountUpdated
		out.AccountID = acct.ID
		out.ChargesEnabled = acct.ChargesEnabled
		out.PayoutsEnabled = acct.PayoutsEnabled
		out.DetailsSubmitted = acct.DetailsSubmitted
	}

	return out, nil
}
