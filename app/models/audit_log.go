package models

import (
	"encoding/json"
	"time"
)

// AuditLog records who did what to which entity. Writes are best-effort and
// must never block or roll back the transition they describe.
type AuditLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ActorID      *uint     `gorm:"index" json:"actor_id,omitempty"`
	EntityType   string    `gorm:"type:varchar(50);not null;index" json:"entity_type"`
	EntityID     uint      `gorm:"not null;index" json:"entity_id"`
	Action       string    `gorm:"type:varchar(50);not null" json:"action"`
	MetadataJSON string    `gorm:"type:text" json:"metadata_json"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// NewAuditLog builds an unsaved audit entry; metadata marshalling errors
// degrade to an empty payload rather than failing the write.
func NewAuditLog(actorID *uint, entityType string, entityID uint, action string, metadata map[string]any) *AuditLog {
	entry := &AuditLog{
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
	}
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			entry.MetadataJSON = string(b)
		}
	}
	return entry
}
