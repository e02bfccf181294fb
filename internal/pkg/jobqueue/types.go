package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeNotification   JobType = "notification"
	JobTypeArchiveWebhook JobType = "archive_webhook"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// NotificationJobPayload carries a user notification to deliver.
type NotificationJobPayload struct {
	UserID      uint   `json:"user_id"`
	Kind        string `json:"kind"`
	Content     string `json:"content"`
	ReferenceID uint   `json:"reference_id"`
	SendEmail   bool   `json:"send_email"`
}

// ToMap converts the payload to a map for storage
func (p NotificationJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      p.UserID,
		"kind":         p.Kind,
		"content":      p.Content,
		"reference_id": p.ReferenceID,
		"send_email":   p.SendEmail,
	}
}

// NotificationJobPayloadFromMap creates a payload from a map
func NotificationJobPayloadFromMap(data map[string]interface{}) (*NotificationJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload NotificationJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// ArchiveWebhookJobPayload carries a raw webhook payload to object storage.
type ArchiveWebhookJobPayload struct {
	EventID string `json:"event_id"`
	Payload string `json:"payload"`
}

// ToMap converts the payload to a map for storage
func (p ArchiveWebhookJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id": p.EventID,
		"payload":  p.Payload,
	}
}

// ArchiveWebhookJobPayloadFromMap creates a payload from a map
func ArchiveWebhookJobPayloadFromMap(data map[string]interface{}) (*ArchiveWebhookJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ArchiveWebhookJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}
