package payout

import (
	"time"

	"github.com/curavoy/curavoy/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the payout executor.
type Repository interface {
	// ListDue returns pending payouts with scheduled_at <= now, oldest
	// scheduled first, capped at limit.
	ListDue(now time.Time, limit int) ([]models.Payout, error)
	GetProvider(id uint) (*models.Provider, error)
	// MarkPaid and MarkFailed re-verify the pending status inside the UPDATE
	// so overlapping executor runs cannot double-settle a payout.
	MarkPaid(id uint, transferID string) (bool, error)
	MarkFailed(id uint, reason string) (bool, error)
	ListByProvider(providerID uint, offset, limit int) ([]models.Payout, error)
	List(offset, limit int) ([]models.Payout, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payout repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) ListDue(now time.Time, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.
		Where("status = ? AND scheduled_at <= ?", models.PayoutStatusPending, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&payouts).Error
	return payouts, err
}

func (r *gormRepository) GetProvider(id uint) (*models.Provider, error) {
	var p models.Provider
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) MarkPaid(id uint, transferID string) (bool, error) {
	now := time.Now()
	tx := r.db.Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, models.PayoutStatusPending).
		Updates(map[string]any{
			"status":             models.PayoutStatusPaid,
			"paid_at":            &now,
			"stripe_transfer_id": transferID,
			"last_error":         "",
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) MarkFailed(id uint, reason string) (bool, error) {
	tx := r.db.Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, models.PayoutStatusPending).
		Updates(map[string]any{
			"status":     models.PayoutStatusFailed,
			"last_error": reason,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListByProvider(providerID uint, offset, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.
		Where("provider_id = ?", providerID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&payouts).Error
	return payouts, err
}

func (r *gormRepository) List(offset, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&payouts).Error
	return payouts, err
}
