package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ProviderStatusActive    = "active"
	ProviderStatusSuspended = "suspended"
)

// Provider is a clinic or hospital offering treatments on the marketplace.
// The Stripe connected account fields mirror the gateway's onboarding state
// and are updated only through account webhooks.
type Provider struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=2,max=200"`
	Email            string         `gorm:"type:varchar(200);uniqueIndex" json:"email" validate:"required,email"`
	Country          string         `gorm:"type:char(2);default:''" json:"country"`
	City             string         `gorm:"type:varchar(100);default:''" json:"city"`
	Specialty        string         `gorm:"type:varchar(100);default:''" json:"specialty"`
	Status           string         `gorm:"type:varchar(20);default:'active'" json:"status" validate:"oneof=active suspended"`
	StripeAccountID  string         `gorm:"type:varchar(191);default:'';uniqueIndex" json:"stripe_account_id"`
	ChargesEnabled   bool           `gorm:"default:false" json:"charges_enabled"`
	PayoutsEnabled   bool           `gorm:"default:false" json:"payouts_enabled"`
	DetailsSubmitted bool           `gorm:"default:false" json:"details_submitted"`
	OnboardedAt      *time.Time     `gorm:"type:timestamp;default:null" json:"onboarded_at,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Provider) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// CanReceivePayouts reports whether the provider finished gateway onboarding
// far enough to be a valid transfer destination.
func (p *Provider) CanReceivePayouts() bool {
	return p.StripeAccountID != "" && p.PayoutsEnabled
}
