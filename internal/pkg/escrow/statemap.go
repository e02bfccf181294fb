package escrow

import "github.com/curavoy/curavoy/app/models"

// transitions is the full payment lifecycle table. A status missing from the
// map is terminal.
var transitions = map[string][]string{
	models.PaymentStatusInitiated:  {models.PaymentStatusAuthorized, models.PaymentStatusHeld, models.PaymentStatusFailed},
	models.PaymentStatusAuthorized: {models.PaymentStatusHeld, models.PaymentStatusFailed},
	models.PaymentStatusHeld:       {models.PaymentStatusReleased, models.PaymentStatusRefunded},
	models.PaymentStatusReleased:   {models.PaymentStatusRefunded},
}

// CanTransition reports whether the payment state machine allows from→to.
func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// MapIntentStatus maps a gateway intent sub-status to the local payment
// status. The bool is false for sub-statuses this engine does not act on.
// Failure sub-events are handled separately and force the failed status
// regardless of this table.
func MapIntentStatus(intentStatus string) (string, bool) {
	switch intentStatus {
	case "succeeded":
		return models.PaymentStatusHeld, true
	case "requires_capture":
		return models.PaymentStatusAuthorized, true
	case "processing":
		return models.PaymentStatusInitiated, true
	default:
		return "", false
	}
}
