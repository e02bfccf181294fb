package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/refund"
	"github.com/stripe/stripe-go/v80/transfer"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/curavoy/curavoy/internal/pkg/env"
)

const defaultWebhookTolerance = 300 * time.Second

// StripeClient implements Client against the Stripe API.
type StripeClient struct {
	secretKey        string
	webhookSecret    string
	webhookTolerance time.Duration
}

// NewStripeClientFromEnv builds the client from STRIPE_* environment
// variables. An empty secret key yields a client that reports unconfigured.
func NewStripeClientFromEnv() *StripeClient {
	tolerance := defaultWebhookTolerance
	if raw := env.GetEnv("STRIPE_WEBHOOK_TOLERANCE_SECONDS", ""); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			tolerance = time.Duration(secs) * time.Second
		}
	}

	c := &StripeClient{
		secretKey:        env.GetEnv("STRIPE_SECRET_KEY", ""),
		webhookSecret:    env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		webhookTolerance: tolerance,
	}
	if c.secretKey != "" {
		stripe.Key = c.secretKey
	}
	return c
}

func (c *StripeClient) IsConfigured() bool {
	return c.secretKey != ""
}

func (c *StripeClient) Authorize(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*AuthorizeResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountMinor),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &AuthorizeResult{ExternalRef: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (c *StripeClient) Capture(ctx context.Context, externalRef string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	pi, err := paymentintent.Capture(externalRef, params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (c *StripeClient) Refund(ctx context.Context, externalRef, reason string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(externalRef),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	_, err := refund.New(params)
	return err
}

func (c *StripeClient) CreateTransfer(ctx context.Context, amountMinor int64, currency, destination string, metadata map[string]string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountMinor),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destination),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	tr, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}

func (c *StripeClient) VerifyAndParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	if c.webhookSecret == "" {
		return nil, ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithTolerance(payload, signatureHeader, c.webhookSecret, c.webhookTolerance)
	if err != nil {
		return nil, err
	}
	return normalizeEvent(event, payload)
}
