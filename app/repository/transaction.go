package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

var ErrTransactionNotFound = errors.New("transaction not found")

const transactionColumns = `
	id, order_id, user_id, type, payment_method, amount_minor, fees_minor, net_amount_minor,
	currency, status, gateway_response_json, revision, created_at, processed_at, settled_at
`

type TransactionFilter struct {
	UserID string
	Status string
	Limit  int32
	Offset int32
}

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *entity.Transaction) error {
	gatewayJSON, err := serializeJSON(txn.Gateway)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payment_transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		txn.ID,
		txn.OrderID,
		txn.UserID,
		txn.Type,
		txn.PaymentMethod,
		txn.AmountMinor,
		txn.FeesMinor,
		txn.NetAmountMinor,
		txn.Currency,
		string(txn.Status),
		gatewayJSON,
		txn.Revision,
		txn.CreatedAt,
		nullableTimeValue(txn.ProcessedAt),
		nullableTimeValue(txn.SettledAt),
	)
	return err
}

// Update refuses to touch transactions that already reached a final state.
func (r *TransactionRepository) Update(ctx context.Context, txn *entity.Transaction) error {
	gatewayJSON, err := serializeJSON(txn.Gateway)
	if err != nil {
		return err
	}

	query := `
		UPDATE payment_transactions SET
			status = ?,
			gateway_response_json = ?,
			revision = revision + 1,
			processed_at = ?,
			settled_at = ?
		WHERE id = ? AND revision = ? AND status NOT IN ('settled', 'failed')
	`

	result, err := r.db.ExecContext(ctx, query,
		string(txn.Status),
		gatewayJSON,
		nullableTimeValue(txn.ProcessedAt),
		nullableTimeValue(txn.SettledAt),
		txn.ID,
		txn.Revision,
	)
	if err != nil {
		return err
	}
	if err := guardRevision(ctx, r.db, result, "payment_transactions", txn.ID, ErrTransactionNotFound); err != nil {
		return err
	}

	txn.Revision++
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*entity.Transaction, error) {
	return r.findOne(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = ?`, id)
}

// FindByGatewayID resolves a transaction from the id the gateway assigned.
func (r *TransactionRepository) FindByGatewayID(ctx context.Context, gatewayTransactionID string) (*entity.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE gateway_transaction_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, gatewayTransactionID)
}

func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]*entity.Transaction, error) {
	where, args := transactionWhere(filter)
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Transaction, 0)
	for rows.Next() {
		item := &entity.Transaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *TransactionRepository) Count(ctx context.Context, filter TransactionFilter) (int64, error) {
	where, args := transactionWhere(filter)
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_transactions`+where, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *TransactionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Transaction, error) {
	txn := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, args...), txn); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return txn, nil
}

func transactionWhere(filter TransactionFilter) (string, []interface{}) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if strings.TrimSpace(filter.UserID) != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if strings.TrimSpace(filter.Status) != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanTransaction(scan rowScanner, txn *entity.Transaction) error {
	var status string
	var gatewayJSON string
	var processedAt sql.NullTime
	var settledAt sql.NullTime

	err := scan.Scan(
		&txn.ID,
		&txn.OrderID,
		&txn.UserID,
		&txn.Type,
		&txn.PaymentMethod,
		&txn.AmountMinor,
		&txn.FeesMinor,
		&txn.NetAmountMinor,
		&txn.Currency,
		&status,
		&gatewayJSON,
		&txn.Revision,
		&txn.CreatedAt,
		&processedAt,
		&settledAt,
	)
	if err != nil {
		return err
	}

	txn.Status = entity.TransactionStatus(status)
	txn.ProcessedAt = timePtrFromNull(processedAt)
	txn.SettledAt = timePtrFromNull(settledAt)

	return parseJSON(gatewayJSON, &txn.Gateway)
}
