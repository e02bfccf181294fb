package jobqueue

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/curavoy/curavoy/app/models"
	"github.com/curavoy/curavoy/internal/pkg/archive"
	"github.com/curavoy/curavoy/internal/pkg/database"
	"github.com/curavoy/curavoy/internal/pkg/mail"
)

// processNotificationJob persists the notification row and optionally sends
// an email when the recipient opted in.
func processNotificationJob(job *Job) error {
	payload, err := NotificationJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("decode notification payload: %w", err)
	}

	db := database.GetDB()
	if err := models.CreateNotification(db, payload.UserID, payload.Kind, payload.Content, payload.ReferenceID); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	if !payload.SendEmail {
		return nil
	}

	var user models.User
	if err := db.First(&user, payload.UserID).Error; err != nil {
		// Row is persisted; a missing user only costs the email.
		log.Warnf("[JobQueue] Notification %s: user %d not found for email delivery", job.ID, payload.UserID)
		return nil
	}

	mailer, err := mail.NewMailerFromEnv()
	if err != nil {
		log.Warnf("[JobQueue] Notification %s: mailer unavailable: %v", job.ID, err)
		return nil
	}
	if err := mailer.SendNotification(user.Email, payload.Kind, payload.Content); err != nil {
		return fmt.Errorf("send notification mail: %w", err)
	}
	return nil
}

// processArchiveWebhookJob uploads the raw webhook payload to object storage.
func processArchiveWebhookJob(job *Job) error {
	payload, err := ArchiveWebhookJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("decode archive payload: %w", err)
	}

	client, err := archive.NewClientFromEnv()
	if err != nil {
		return fmt.Errorf("archive client: %w", err)
	}
	return client.PutWebhookPayload(payload.EventID, []byte(payload.Payload))
}
