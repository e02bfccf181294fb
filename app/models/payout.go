package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	PayoutStatusPending = "pending"
	PayoutStatusPaid    = "paid"
	PayoutStatusFailed  = "failed"
)

// Payout is an obligation to transfer released funds to a provider. Exactly
// one payout exists per payment; the unique index on PaymentID is what makes
// concurrent scheduling attempts collapse into a single row.
type Payout struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UUID             string     `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	ProviderID       uint       `gorm:"index;not null" json:"provider_id"`
	PaymentID        uint       `gorm:"uniqueIndex;not null" json:"payment_id"`
	AmountMinor      int64      `gorm:"not null" json:"amount_minor" validate:"gte=0"`
	Currency         string     `gorm:"type:char(3);not null" json:"currency" validate:"required,len=3"`
	Status           string     `gorm:"type:varchar(20);not null;index" json:"status" validate:"oneof=pending paid failed"`
	ScheduledAt      time.Time  `gorm:"type:timestamp;not null;index" json:"scheduled_at"`
	PaidAt           *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	StripeTransferID string     `gorm:"type:varchar(191);default:''" json:"stripe_transfer_id"`
	LastError        string     `gorm:"type:text" json:"last_error"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payout) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// NewPayout builds an unsaved pending payout for a released payment.
func NewPayout(providerID uint, payment *Payment, scheduledAt time.Time) *Payout {
	return &Payout{
		UUID:        uuid.NewString(),
		ProviderID:  providerID,
		PaymentID:   payment.ID,
		AmountMinor: payment.AmountMinor,
		Currency:    payment.Currency,
		Status:      PayoutStatusPending,
		ScheduledAt: scheduledAt,
	}
}
