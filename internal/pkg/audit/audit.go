package audit

import (
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/curavoy/curavoy/app/models"
)

// Recorder writes audit entries best-effort: failures are logged and never
// reach the caller, so an audit outage cannot block money movement.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates an audit recorder on the given DB handle.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record persists one audit entry.
func (r *Recorder) Record(actorID *uint, entityType string, entityID uint, action string, metadata map[string]any) {
	if r == nil || r.db == nil {
		return
	}
	entry := models.NewAuditLog(actorID, entityType, entityID, action, metadata)
	if err := r.db.Create(entry).Error; err != nil {
		log.Errorf("[Audit] failed to record %s on %s/%d: %v", action, entityType, entityID, err)
	}
}
