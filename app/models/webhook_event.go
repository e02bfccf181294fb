package models

import "time"

// WebhookEvent stores gateway webhook payloads with deduplication metadata
// for idempotent processing. The unique (source, event_id) index is the
// idempotency gate: a second delivery of the same gateway event id conflicts
// on insert and is absorbed as a duplicate.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Source          string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_source_event,unique,priority:1;index" json:"source"`
	EventID         string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_events_source_event,priority:2,unique" json:"event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	LiveMode        bool       `gorm:"default:false" json:"live_mode"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	PayloadSHA256   string     `gorm:"type:char(64);not null;default:''" json:"payload_sha256"`
	Attempts        int        `gorm:"default:0" json:"attempts"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsProcessed reports whether business logic completed for this event.
func (e *WebhookEvent) IsProcessed() bool {
	return e.ProcessedAt != nil
}
