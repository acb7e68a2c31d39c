package entity

import "time"

type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusFailed    WebhookStatus = "failed"
)

type Webhook struct {
	ID        string
	Event     string
	Payload   string
	Signature string
	Timestamp time.Time

	Status      WebhookStatus
	RetryCount  int32
	NextRetryAt *time.Time
	LastError   *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

func (w *Webhook) Processed() bool {
	return w.Status == WebhookStatusProcessed
}
