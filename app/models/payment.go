package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	PaymentStatusInitiated  = "initiated"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusHeld       = "held"
	PaymentStatusReleased   = "released"
	PaymentStatusRefunded   = "refunded"
	PaymentStatusFailed     = "failed"
)

// MinDepositMinor is the smallest accepted deposit in minor currency units.
const MinDepositMinor = 50

const (
	MinHoldDays = 1
	MaxHoldDays = 30
)

// Payment is a ledger entry for funds a patient has committed toward a
// quotation. Amounts are integer minor units (cents). Status changes go
// through the escrow state machine only; rows are never deleted so that
// refunded and failed payments stay auditable.
type Payment struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UUID              string     `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	UserID            uint       `gorm:"index;not null" json:"user_id"`
	User              User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	QuotationID       *uint      `gorm:"index" json:"quotation_id,omitempty"`
	AmountMinor       int64      `gorm:"not null" json:"amount_minor" validate:"gte=0"`
	Currency          string     `gorm:"type:char(3);not null" json:"currency" validate:"required,len=3,uppercase"`
	Status            string     `gorm:"type:varchar(20);not null;index" json:"status" validate:"oneof=initiated authorized held released refunded failed"`
	HoldDays          int        `json:"hold_days" validate:"min=1,max=30"`
	EscrowHoldUntil   *time.Time `gorm:"type:timestamp;default:null" json:"escrow_hold_until,omitempty"`
	ReleaseEligibleAt *time.Time `gorm:"type:timestamp;default:null" json:"release_eligible_at,omitempty"`
	ReleasedAt        *time.Time `gorm:"type:timestamp;default:null" json:"released_at,omitempty"`
	CapturedAt        *time.Time `gorm:"type:timestamp;default:null" json:"captured_at,omitempty"`
	StripeIntentID    string     `gorm:"type:varchar(191);default:'';index" json:"stripe_intent_id"`
	StripeChargeID    string     `gorm:"type:varchar(191);default:''" json:"stripe_charge_id"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// NewPayment builds an unsaved payment with a fresh public UUID and the
// escrow window derived from holdDays.
func NewPayment(userID uint, quotationID *uint, amountMinor int64, currency string, holdDays int, status string) *Payment {
	now := time.Now()
	holdUntil := now.AddDate(0, 0, holdDays)

	return &Payment{
		UUID:              uuid.NewString(),
		UserID:            userID,
		QuotationID:       quotationID,
		AmountMinor:       amountMinor,
		Currency:          currency,
		Status:            status,
		HoldDays:          holdDays,
		EscrowHoldUntil:   &holdUntil,
		ReleaseEligibleAt: &holdUntil,
	}
}

// IsTerminal reports whether the payment reached a final state.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusRefunded || p.Status == PaymentStatusFailed
}
