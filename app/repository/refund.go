package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

var (
	ErrRefundNotFound       = errors.New("refund not found")
	ErrRefundExceedsBalance = errors.New("refund exceeds refundable balance")
)

const refundColumns = `
	id, order_id, transaction_id, amount_minor, currency, reason, requested_by, status,
	gateway_refund_id, failure_reason, created_at, updated_at, processed_at
`

type RefundRepository struct {
	db DBTX
}

func NewRefundRepository(db DBTX) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, refund *entity.Refund) error {
	query := `
		INSERT INTO payment_refunds (` + refundColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		refund.ID,
		refund.OrderID,
		refund.TransactionID,
		refund.AmountMinor,
		refund.Currency,
		refund.Reason,
		refund.RequestedBy,
		string(refund.Status),
		nullableStringValue(refund.GatewayRefundID),
		nullableStringValue(refund.FailureReason),
		refund.CreatedAt,
		refund.UpdatedAt,
		nullableTimeValue(refund.ProcessedAt),
	)
	return err
}

func (r *RefundRepository) Update(ctx context.Context, refund *entity.Refund) error {
	query := `
		UPDATE payment_refunds SET
			status = ?,
			gateway_refund_id = ?,
			failure_reason = ?,
			updated_at = ?,
			processed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(refund.Status),
		nullableStringValue(refund.GatewayRefundID),
		nullableStringValue(refund.FailureReason),
		refund.UpdatedAt,
		nullableTimeValue(refund.ProcessedAt),
		refund.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRefundNotFound
	}

	return nil
}

func (r *RefundRepository) FindByID(ctx context.Context, id string) (*entity.Refund, error) {
	return r.findOne(ctx, `SELECT `+refundColumns+` FROM payment_refunds WHERE id = ?`, id)
}

func (r *RefundRepository) FindByGatewayRefundID(ctx context.Context, gatewayRefundID string) (*entity.Refund, error) {
	return r.findOne(ctx, `SELECT `+refundColumns+` FROM payment_refunds WHERE gateway_refund_id = ? LIMIT 1`, gatewayRefundID)
}

// SumReserved totals every refund of the transaction that has not failed.
func (r *RefundRepository) SumReserved(ctx context.Context, transactionID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM payment_refunds
		WHERE transaction_id = ? AND status <> 'failed'
	`
	var total int64
	if err := r.db.QueryRowContext(ctx, query, transactionID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// SumCompleted totals the refunds of the transaction the gateway confirmed.
func (r *RefundRepository) SumCompleted(ctx context.Context, transactionID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM payment_refunds
		WHERE transaction_id = ? AND status = 'completed'
	`
	var total int64
	if err := r.db.QueryRowContext(ctx, query, transactionID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *RefundRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Refund, error) {
	refund := &entity.Refund{}
	if err := scanRefund(r.db.QueryRowContext(ctx, query, args...), refund); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return refund, nil
}

func scanRefund(scan rowScanner, refund *entity.Refund) error {
	var status string
	var gatewayRefundID sql.NullString
	var failureReason sql.NullString
	var processedAt sql.NullTime

	err := scan.Scan(
		&refund.ID,
		&refund.OrderID,
		&refund.TransactionID,
		&refund.AmountMinor,
		&refund.Currency,
		&refund.Reason,
		&refund.RequestedBy,
		&status,
		&gatewayRefundID,
		&failureReason,
		&refund.CreatedAt,
		&refund.UpdatedAt,
		&processedAt,
	)
	if err != nil {
		return err
	}

	refund.Status = entity.RefundStatus(status)
	refund.GatewayRefundID = stringPtrFromNull(gatewayRefundID)
	refund.FailureReason = stringPtrFromNull(failureReason)
	refund.ProcessedAt = timePtrFromNull(processedAt)
	return nil
}
