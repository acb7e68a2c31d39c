package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
)

const orderColumns = `
	id, user_id, merchant_id, amount_minor, currency, status, description, items_json,
	payment_method, transaction_id, failure_reason, metadata_json, revision,
	created_at, updated_at, expires_at, completed_at, cancelled_at
`

type OrderFilter struct {
	UserID string
	Limit  int32
	Offset int32
}

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	itemsJSON, err := serializeJSON(order.Items)
	if err != nil {
		return err
	}
	metadataJSON, err := serializeMetadata(order.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		nullableStringValue(order.MerchantID),
		order.AmountMinor,
		order.Currency,
		string(order.Status),
		order.Description,
		itemsJSON,
		nullableStringValue(order.PaymentMethod),
		nullableStringValue(order.TransactionID),
		nullableStringValue(order.FailureReason),
		metadataJSON,
		order.Revision,
		order.CreatedAt,
		order.UpdatedAt,
		order.ExpiresAt,
		nullableTimeValue(order.CompletedAt),
		nullableTimeValue(order.CancelledAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrOrderAlreadyExists
		}
		return err
	}

	return nil
}

// Update persists the order when its revision still matches the stored one
// and bumps the revision on success.
func (r *OrderRepository) Update(ctx context.Context, order *entity.Order) error {
	metadataJSON, err := serializeMetadata(order.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE orders SET
			status = ?,
			payment_method = ?,
			transaction_id = ?,
			failure_reason = ?,
			metadata_json = ?,
			revision = revision + 1,
			updated_at = ?,
			completed_at = ?,
			cancelled_at = ?
		WHERE id = ? AND revision = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(order.Status),
		nullableStringValue(order.PaymentMethod),
		nullableStringValue(order.TransactionID),
		nullableStringValue(order.FailureReason),
		metadataJSON,
		order.UpdatedAt,
		nullableTimeValue(order.CompletedAt),
		nullableTimeValue(order.CancelledAt),
		order.ID,
		order.Revision,
	)
	if err != nil {
		return err
	}
	if err := guardRevision(ctx, r.db, result, "orders", order.ID, ErrOrderNotFound); err != nil {
		return err
	}

	order.Revision++
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`

	order := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, id), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return order, nil
}

// List returns the orders of a user, newest first.
func (r *OrderRepository) List(ctx context.Context, filter OrderFilter) ([]*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ?` +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, filter.UserID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Order, 0)
	for rows.Next() {
		item := &entity.Order{}
		if err := scanOrder(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *OrderRepository) Count(ctx context.Context, filter OrderFilter) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = ?`, filter.UserID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func scanOrder(scan rowScanner, order *entity.Order) error {
	var merchantID sql.NullString
	var paymentMethod sql.NullString
	var transactionID sql.NullString
	var failureReason sql.NullString
	var completedAt sql.NullTime
	var cancelledAt sql.NullTime
	var status string
	var itemsJSON string
	var metadataJSON string

	err := scan.Scan(
		&order.ID,
		&order.UserID,
		&merchantID,
		&order.AmountMinor,
		&order.Currency,
		&status,
		&order.Description,
		&itemsJSON,
		&paymentMethod,
		&transactionID,
		&failureReason,
		&metadataJSON,
		&order.Revision,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.ExpiresAt,
		&completedAt,
		&cancelledAt,
	)
	if err != nil {
		return err
	}

	order.Status = entity.OrderStatus(status)
	order.MerchantID = stringPtrFromNull(merchantID)
	order.PaymentMethod = stringPtrFromNull(paymentMethod)
	order.TransactionID = stringPtrFromNull(transactionID)
	order.FailureReason = stringPtrFromNull(failureReason)
	order.CompletedAt = timePtrFromNull(completedAt)
	order.CancelledAt = timePtrFromNull(cancelledAt)

	items := make([]entity.OrderItem, 0)
	if err := parseJSON(itemsJSON, &items); err != nil {
		return err
	}
	order.Items = items

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	order.Metadata = metadata

	return nil
}
