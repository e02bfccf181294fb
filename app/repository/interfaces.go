package repository

import (
	"time"

	"github.com/curavoy/curavoy/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// ProviderRepository defines the interface for provider-related operations
type ProviderRepository interface {
	Create(provider *models.Provider) error
	GetByID(id uint) (*models.Provider, error)
	GetByStripeAccountID(accountID string) (*models.Provider, error)
	Update(provider *models.Provider) error
	List(offset, limit int) ([]models.Provider, error)
	Count() (int64, error)
}

// QuotationRepository defines the interface for quotation-related operations
type QuotationRepository interface {
	Create(quotation *models.Quotation) error
	GetByID(id uint) (*models.Quotation, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Quotation, error)
	GetByProviderID(providerID uint, offset, limit int) ([]models.Quotation, error)
	Update(quotation *models.Quotation) error
	MarkExpired(now time.Time) (int64, error)
}

// NotificationRepository defines the interface for notification queries
type NotificationRepository interface {
	GetByUserID(userID uint, offset, limit int) ([]models.Notification, error)
	CountUnread(userID uint) (int64, error)
	MarkRead(userID, notificationID uint) error
}

// SettingRepository defines the interface for application settings
type SettingRepository interface {
	Get() (*models.AppSettings, error)
	Save(settings *models.AppSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// QueueRepository defines the interface for cache/queue inspection
type QueueRepository interface {
	GetAllKeys() ([]string, error)
	GetValue(key string) (string, error)
	GetTTL(key string) (time.Duration, error)
	DeleteKey(key string) (int64, error)
	GetListLength(key string) (int64, error)
	FindKeysByPatterns(patterns []string) ([]string, error)
	DeleteKeys(keys []string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Provider     ProviderRepository
	Quotation    QuotationRepository
	Notification NotificationRepository
	Setting      SettingRepository
	Queue        QueueRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Provider:     NewProviderRepository(db),
		Quotation:    NewQuotationRepository(db),
		Notification: NewNotificationRepository(db),
		Setting:      NewSettingRepository(db),
		Queue:        NewQueueRepository(),
	}
}
