package escrow

import (
	"time"

	"github.com/curavoy/curavoy/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the escrow service.
type Repository interface {
	Transaction(fn func(Repository) error) error

	CreatePayment(p *models.Payment) error
	GetPaymentByUUID(uuid string) (*models.Payment, error)
	GetPaymentByIntentID(intentID string) (*models.Payment, error)
	UpdatePaymentFields(id uint, updates map[string]any) error
	// TransitionPayment moves a payment to status `to` only when its current
	// status is one of `from`, re-verified inside the UPDATE itself. Returns
	// false when the precondition no longer held.
	TransitionPayment(id uint, from []string, to string, updates map[string]any) (bool, error)
	ListPaymentsByUser(userID uint, offset, limit int) ([]models.Payment, error)
	ListPayments(offset, limit int) ([]models.Payment, error)

	GetQuotation(id uint) (*models.Quotation, error)
	GetProviderByAccountID(accountID string) (*models.Provider, error)
	SaveProvider(p *models.Provider) error

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint) error
	MarkWebhookFailed(id uint, processingError string) error
	ListStuckWebhookEvents(olderThan time.Time, maxAttempts, limit int) ([]models.WebhookEvent, error)

	CreatePayoutIfNotExists(p *models.Payout) (bool, *models.Payout, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an escrow repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) GetPaymentByUUID(uuid string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("uuid = ?", uuid).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPaymentByIntentID(intentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("stripe_intent_id = ?", intentID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) UpdatePaymentFields(id uint, updates map[string]any) error {
	return r.db.Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) TransitionPayment(id uint, from []string, to string, updates map[string]any) (bool, error) {
	set := map[string]any{"status": to}
	for k, v := range updates {
		set[k] = v
	}
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(set)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListPaymentsByUser(userID uint, offset, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ?", userID).
		Offset(offset).Limit(limit).Order("created_at DESC").Find(&payments).Error
	return payments, err
}

func (r *gormRepository) ListPayments(offset, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Offset(offset).Limit(limit).Order("created_at DESC").Find(&payments).Error
	return payments, err
}

func (r *gormRepository) GetQuotation(id uint) (*models.Quotation, error) {
	var q models.Quotation
	if err := r.db.First(&q, id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *gormRepository) GetProviderByAccountID(accountID string) (*models.Provider, error) {
	var p models.Provider
	if err := r.db.Where("stripe_account_id = ?", accountID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) SaveProvider(p *models.Provider) error {
	return r.db.Save(p).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "source"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("source = ? AND event_id = ?", event.Source, event.EventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]any{
		"processed_at":     &now,
		"processing_error": "",
		"attempts":         gorm.Expr("attempts + 1"),
	}).Error
}

func (r *gormRepository) MarkWebhookFailed(id uint, processingError string) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]any{
		"processing_error": processingError,
		"attempts":         gorm.Expr("attempts + 1"),
	}).Error
}

func (r *gormRepository) ListStuckWebhookEvents(olderThan time.Time, maxAttempts, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.
		Where("processed_at IS NULL AND created_at < ? AND attempts < ?", olderThan, maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) CreatePayoutIfNotExists(p *models.Payout) (bool, *models.Payout, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Payout
	if err := r.db.Where("payment_id = ?", p.PaymentID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}
