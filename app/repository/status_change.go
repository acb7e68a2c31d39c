package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

type StatusChangeRepository struct {
	db DBTX
}

func NewStatusChangeRepository(db DBTX) *StatusChangeRepository {
	return &StatusChangeRepository{db: db}
}

func (r *StatusChangeRepository) Create(ctx context.Context, change *entity.StatusChange) error {
	query := `
		INSERT INTO status_changes (
			aggregate_type, aggregate_id, event_type, old_status, new_status, payload_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		change.AggregateType,
		change.AggregateID,
		change.EventType,
		nullableStringValue(change.OldStatus),
		change.NewStatus,
		nullableStringValue(change.PayloadJSON),
		change.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	change.ID = uint64(id)

	return nil
}
