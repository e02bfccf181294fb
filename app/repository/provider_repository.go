package repository

import (
	"github.com/curavoy/curavoy/app/models"
	"gorm.io/gorm"
)

// providerRepository implements the ProviderRepository interface
type providerRepository struct {
	db *gorm.DB
}

// NewProviderRepository creates a new provider repository instance
func NewProviderRepository(db *gorm.DB) ProviderRepository {
	return &providerRepository{db: db}
}

// Create creates a new provider in the database
func (r *providerRepository) Create(provider *models.Provider) error {
	return r.db.Create(provider).Error
}

// GetByID retrieves a provider by ID
func (r *providerRepository) GetByID(id uint) (*models.Provider, error) {
	var provider models.Provider
	err := r.db.First(&provider, id).Error
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

// GetByStripeAccountID retrieves a provider by its connected account ID
func (r *providerRepository) GetByStripeAccountID(accountID string) (*models.Provider, error) {
	var provider models.Provider
	err := r.db.Where("stripe_account_id = ?", accountID).First(&provider).Error
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

// Update updates an existing provider
func (r *providerRepository) Update(provider *models.Provider) error {
	return r.db.Save(provider).Error
}

// List retrieves providers with pagination
func (r *providerRepository) List(offset, limit int) ([]models.Provider, error) {
	var providers []models.Provider
	err := r.db.Offset(offset).Limit(limit).Order("name ASC").Find(&providers).Error
	return providers, err
}

// Count returns the total number of providers
func (r *providerRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Provider{}).Count(&count).Error
	return count, err
}
