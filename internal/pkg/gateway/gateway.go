package gateway

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by every operation when gateway credentials
// are absent. Callers translate it into their configuration error kind.
var ErrNotConfigured = errors.New("payment gateway is not configured")

// AuthorizeResult is the outcome of a manual-capture authorization.
type AuthorizeResult struct {
	ExternalRef  string
	ClientSecret string
}

// Client is the payment-gateway capability injected into the escrow service
// and the payout executor. Implementations must bound every call with the
// provided context; a timeout surfaces as an error, never as a hang.
type Client interface {
	// IsConfigured reports whether credentials are present. Operations on an
	// unconfigured client fail with ErrNotConfigured.
	IsConfigured() bool

	// Authorize places a manual-capture hold. Funds are reserved, not
	// settled, until Capture is called or the gateway captures via webhook.
	Authorize(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*AuthorizeResult, error)

	// Capture settles a previously authorized hold.
	Capture(ctx context.Context, externalRef string) (string, error)

	// Refund returns held or settled funds to the payer.
	Refund(ctx context.Context, externalRef, reason string) error

	// CreateTransfer moves released funds to a provider's connected account.
	CreateTransfer(ctx context.Context, amountMinor int64, currency, destination string, metadata map[string]string) (string, error)

	// VerifyAndParseWebhook checks the signature over the raw payload
	// (including the signed timestamp, within the configured tolerance) and
	// normalizes the event. Invalid signatures and stale timestamps fail
	// before any payload field is trusted.
	VerifyAndParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
}
