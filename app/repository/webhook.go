package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

var (
	ErrWebhookNotFound      = errors.New("webhook not found")
	ErrWebhookAlreadyExists = errors.New("webhook already exists")
)

const webhookColumns = `
	id, event, payload_json, signature, event_timestamp, status, retry_count, next_retry_at,
	last_error, created_at, updated_at, processed_at
`

type WebhookRepository struct {
	db DBTX
}

func NewWebhookRepository(db DBTX) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Create records a received webhook. The primary key on the gateway event id
// is what makes ingestion idempotent across processes.
func (r *WebhookRepository) Create(ctx context.Context, webhook *entity.Webhook) error {
	query := `
		INSERT INTO payment_webhooks (` + webhookColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		webhook.ID,
		webhook.Event,
		webhook.Payload,
		webhook.Signature,
		webhook.Timestamp,
		string(webhook.Status),
		webhook.RetryCount,
		nullableTimeValue(webhook.NextRetryAt),
		nullableStringValue(webhook.LastError),
		webhook.CreatedAt,
		webhook.UpdatedAt,
		nullableTimeValue(webhook.ProcessedAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrWebhookAlreadyExists
		}
		return err
	}
	return nil
}

func (r *WebhookRepository) Update(ctx context.Context, webhook *entity.Webhook) error {
	query := `
		UPDATE payment_webhooks SET
			status = ?,
			retry_count = ?,
			next_retry_at = ?,
			last_error = ?,
			updated_at = ?,
			processed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(webhook.Status),
		webhook.RetryCount,
		nullableTimeValue(webhook.NextRetryAt),
		nullableStringValue(webhook.LastError),
		webhook.UpdatedAt,
		nullableTimeValue(webhook.ProcessedAt),
		webhook.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWebhookNotFound
	}
	return nil
}

func (r *WebhookRepository) FindByID(ctx context.Context, id string) (*entity.Webhook, error) {
	webhook := &entity.Webhook{}
	query := `SELECT ` + webhookColumns + ` FROM payment_webhooks WHERE id = ?`
	if err := scanWebhook(r.db.QueryRowContext(ctx, query, id), webhook); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return webhook, nil
}

func (r *WebhookRepository) ListDueRetry(ctx context.Context, now time.Time, limit int32) ([]*entity.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM payment_webhooks
		WHERE status = 'pending'
		  AND next_retry_at IS NOT NULL
		  AND next_retry_at <= ?
		ORDER BY next_retry_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, now, limit)
}

func (r *WebhookRepository) ListFailed(ctx context.Context, limit, offset int32) ([]*entity.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM payment_webhooks
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`
	return r.list(ctx, query, limit, offset)
}

func (r *WebhookRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Webhook, 0)
	for rows.Next() {
		item := &entity.Webhook{}
		if err := scanWebhook(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanWebhook(scan rowScanner, webhook *entity.Webhook) error {
	var status string
	var nextRetryAt sql.NullTime
	var lastError sql.NullString
	var processedAt sql.NullTime

	err := scan.Scan(
		&webhook.ID,
		&webhook.Event,
		&webhook.Payload,
		&webhook.Signature,
		&webhook.Timestamp,
		&status,
		&webhook.RetryCount,
		&nextRetryAt,
		&lastError,
		&webhook.CreatedAt,
		&webhook.UpdatedAt,
		&processedAt,
	)
	if err != nil {
		return err
	}

	webhook.Status = entity.WebhookStatus(status)
	webhook.NextRetryAt = timePtrFromNull(nextRetryAt)
	webhook.LastError = stringPtrFromNull(lastError)
	webhook.ProcessedAt = timePtrFromNull(processedAt)
	return nil
}
