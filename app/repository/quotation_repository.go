package repository

import (
	"time"

	"github.com/curavoy/curavoy/app/models"
	"gorm.io/gorm"
)

// quotationRepository implements the QuotationRepository interface
type quotationRepository struct {
	db *gorm.DB
}

// NewQuotationRepository creates a new quotation repository instance
func NewQuotationRepository(db *gorm.DB) QuotationRepository {
	return &quotationRepository{db: db}
}

// Create creates a new quotation in the database
func (r *quotationRepository) Create(quotation *models.Quotation) error {
	return r.db.Create(quotation).Error
}

// GetByID retrieves a quotation by ID
func (r *quotationRepository) GetByID(id uint) (*models.Quotation, error) {
	var quotation models.Quotation
	err := r.db.First(&quotation, id).Error
	if err != nil {
		return nil, err
	}
	return &quotation, nil
}

// GetByUserID retrieves quotations addressed to a patient
func (r *quotationRepository) GetByUserID(userID uint, offset, limit int) ([]models.Quotation, error) {
	var quotations []models.Quotation
	err := r.db.Where("user_id = ?", userID).
		Offset(offset).Limit(limit).Order("created_at DESC").Find(&quotations).Error
	return quotations, err
}

// GetByProviderID retrieves quotations issued by a provider
func (r *quotationRepository) GetByProviderID(providerID uint, offset, limit int) ([]models.Quotation, error) {
	var quotations []models.Quotation
	err := r.db.Where("provider_id = ?", providerID).
		Offset(offset).Limit(limit).Order("created_at DESC").Find(&quotations).Error
	return quotations, err
}

// Update updates an existing quotation
func (r *quotationRepository) Update(quotation *models.Quotation) error {
	return r.db.Save(quotation).Error
}

// MarkExpired expires every sent quotation whose validity window has passed.
func (r *quotationRepository) MarkExpired(now time.Time) (int64, error) {
	res := r.db.Model(&models.Quotation{}).
		Where("status = ? AND valid_until IS NOT NULL AND valid_until < ?", models.QuotationStatusSent, now).
		Update("status", models.QuotationStatusExpired)
	return res.RowsAffected, res.Error
}
