package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	QuotationStatusDraft    = "draft"
	QuotationStatusSent     = "sent"
	QuotationStatusAccepted = "accepted"
	QuotationStatusExpired  = "expired"
)

// Quotation is a priced treatment offer from a provider to a patient.
// Deposits reference a quotation to tie escrowed funds to a concrete
// treatment and to resolve the payout destination later.
type Quotation struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ProviderID  uint           `gorm:"index;not null" json:"provider_id"`
	Provider    Provider       `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	UserID      uint           `gorm:"index;not null" json:"user_id"`
	Procedure   string         `gorm:"type:varchar(200);not null" json:"procedure" validate:"required,max=200"`
	Description string         `gorm:"type:text" json:"description"`
	AmountMinor int64          `gorm:"not null" json:"amount_minor" validate:"gte=0"`
	Currency    string         `gorm:"type:char(3);not null" json:"currency" validate:"required,len=3"`
	Status      string         `gorm:"type:varchar(20);default:'draft'" json:"status" validate:"oneof=draft sent accepted expired"`
	ValidUntil  *time.Time     `gorm:"type:timestamp;default:null" json:"valid_until,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (q *Quotation) Validate() error {
	v := validator.New()

	return v.Struct(q)
}
