package jobqueue

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/database"
)

// QueueNotifier satisfies the escrow and payout notifier interfaces by
// enqueueing notification jobs instead of writing rows inline, so a slow
// mail server never sits inside a payment transaction's critical path.
type QueueNotifier struct {
	manager *Manager
}

// NewQueueNotifier returns a notifier backed by the given manager's queue.
func NewQueueNotifier(m *Manager) *QueueNotifier {
	return &QueueNotifier{manager: m}
}

// Notify queues a user notification.
func (n *QueueNotifier) Notify(userID uint, kind, content string, referenceID uint) {
	sendEmail := wantsEmail(userID)
	if _, err := n.manager.EnqueueNotification(NotificationJobPayload{
		UserID:      userID,
		Kind:        kind,
		Content:     content,
		ReferenceID: referenceID,
		SendEmail:   sendEmail,
	}); err != nil {
		log.Errorf("[Notifier] Failed to enqueue %s for user %d: %v", kind, userID, err)
	}
}

// NotifyPayoutFailed informs the paying patient that the provider payout
// could not be executed. Operators see the same reason on the payout row.
func (n *QueueNotifier) NotifyPayoutFailed(payout *models.Payout, reason string) {
	var payment models.Payment
	if err := database.GetDB().First(&payment, payout.PaymentID).Error; err != nil {
		log.Errorf("[Notifier] Payout %s: payment %d not found: %v", payout.UUID, payout.PaymentID, err)
		return
	}
	content := fmt.Sprintf("Payout %s could not be executed: %s", payout.UUID, reason)
	n.Notify(payment.UserID, models.NotificationTypePayoutFailed, content, payout.ID)
}

// QueueArchiver queues raw webhook payloads for S3 archival off the request
// path.
type QueueArchiver struct {
	manager *Manager
}

// NewQueueArchiver returns an archiver backed by the given manager's queue.
func NewQueueArchiver(m *Manager) *QueueArchiver {
	return &QueueArchiver{manager: m}
}

// ArchiveWebhookPayload queues one payload for archival.
func (a *QueueArchiver) ArchiveWebhookPayload(eventID string, payload []byte) {
	if _, err := a.manager.EnqueueWebhookArchive(ArchiveWebhookJobPayload{
		EventID: eventID,
		Payload: string(payload),
	}); err != nil {
		log.Errorf("[Archiver] Failed to enqueue archive for event %s: %v", eventID, err)
	}
}

func wantsEmail(userID uint) bool {
	settings, err := models.GetOrCreateUserSettings(database.GetDB(), userID)
	if err != nil {
		return false
	}
	return settings.NotifyByEmail
}
