package models

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppSettings represents the application settings structure
type AppSettings struct {
	SiteTitle          string `json:"site_title" validate:"required,min=1,max=255"`
	PayoutsEnabled     bool   `json:"payouts_enabled"`
	PayoutIntervalDays int    `json:"payout_interval_days" validate:"min=0,max=90"`
	mu                 sync.RWMutex
}

// Global settings instance
var (
	appSettings *AppSettings
	settingsMu  sync.RWMutex
)

// GetAppSettings returns the current application settings
func GetAppSettings() *AppSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	if appSettings == nil {
		return &AppSettings{
			SiteTitle:          "Curavoy",
			PayoutsEnabled:     false,
			PayoutIntervalDays: 3,
		}
	}
	return appSettings
}

// LoadSettings loads settings from database into memory
func LoadSettings(db *gorm.DB) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	// Initialize with defaults
	appSettings = &AppSettings{
		SiteTitle:          "Curavoy",
		PayoutsEnabled:     false,
		PayoutIntervalDays: 3,
	}

	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	for _, s := range settings {
		switch s.Key {
		case "site_title":
			if s.Value != "" {
				appSettings.SiteTitle = s.Value
			}
		case "payouts_enabled":
			appSettings.PayoutsEnabled = s.Value == "true"
		case "payout_interval_days":
			if v, err := strconv.Atoi(s.Value); err == nil && v >= 0 {
				appSettings.PayoutIntervalDays = v
			}
		}
	}

	return nil
}

// SaveSettings persists the settings to the database and refreshes the
// in-memory copy.
func SaveSettings(db *gorm.DB, settings *AppSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	rows := []Setting{
		{Key: "site_title", Value: settings.SiteTitle, Type: "string"},
		{Key: "payouts_enabled", Value: strconv.FormatBool(settings.PayoutsEnabled), Type: "boolean"},
		{Key: "payout_interval_days", Value: strconv.Itoa(settings.PayoutIntervalDays), Type: "integer"},
	}
	for _, row := range rows {
		var existing Setting
		err := db.Where("setting_key = ?", row.Key).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if err := db.Create(&row).Error; err != nil {
				return err
			}
			continue
		} else if err != nil {
			return err
		}
		existing.Value = row.Value
		existing.Type = row.Type
		if err := db.Save(&existing).Error; err != nil {
			return err
		}
	}

	return LoadSettings(db)
}

// IsPayoutsEnabled reports whether the payout executor may create transfers
func (s *AppSettings) IsPayoutsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.PayoutsEnabled
}

// GetPayoutIntervalDays returns the delay between release and payout execution
func (s *AppSettings) GetPayoutIntervalDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.PayoutIntervalDays
}

// SetPayoutsEnabled toggles payout execution at runtime (tests, admin actions)
func (s *AppSettings) SetPayoutsEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PayoutsEnabled = enabled
}

// Validate validates the settings struct
func (s *AppSettings) Validate() error {
	v := validator.New()

	return v.Struct(s)
}
